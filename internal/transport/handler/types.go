package handler

// ConvertImageParams are the query parameters of POST /images/convert.
type ConvertImageParams struct {
	Key string `validate:"required,max=1024"`
}

const (
	msgConverted = "Image converted and saved to webp folder successfully"
	msgStarted   = "Started processing all images to webp"
)
