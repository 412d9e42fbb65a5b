package main

const (
	MsgMatchesFound = "Found %d similar pet(s)"

	MsgNoMatches = "No similar pets found. Your photo was compared against recent lost pet reports but none looked alike."

	MsgNoImageData = "No image data provided"

	MsgInvalidImage = "Invalid image data. Please upload a JPEG, PNG, GIF, BMP, TIFF or WebP photo."

	MsgPayloadTooLarge = "The uploaded photo is too large."

	MsgDataSourceUnavailable = "Pet reports are unavailable right now. Please try again later."

	MsgBusy = "The server is busy comparing other photos. Please try again in a moment."

	MsgScanTimeout = "Comparing your photo took too long. Please try again."

	MsgInternal = "Something went wrong while comparing your photo."
)
