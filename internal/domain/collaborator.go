package domain

import (
	"context"
	"errors"
	"io"
)

// ErrCodeNotRecognized is returned by a BarcodeDecoder when the image was
// readable but contained no decodable barcode.
var ErrCodeNotRecognized = errors.New("barcode not recognized")

// BarcodeDecoder turns an image byte stream into an EAN code string.
type BarcodeDecoder interface {
	Decode(ctx context.Context, image io.Reader) (string, error)
}

// ProductLookup resolves an EAN code into a company report.
type ProductLookup interface {
	ByCode(ctx context.Context, code string) (*Result, error)
}

// AttachmentFetcher retrieves the bytes behind an attachment reference.
// The caller closes the returned reader.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, att Attachment) (io.ReadCloser, error)
}

// Result is a product's Polish-capital ownership profile as returned by the
// lookup collaborator. A nil Description signals that the producer record
// needs more evidence and the user should be prompted for another photo.
type Result struct {
	Score                int     `json:"score"`
	Name                 string  `json:"name"`
	CapitalShare         float64 `json:"capital_share"`
	ProducesInPoland     bool    `json:"produces_in_poland"`
	ResearchInPoland     bool    `json:"research_in_poland"`
	RegisteredInPoland   bool    `json:"registered_in_poland"`
	NotForeignSubsidiary bool    `json:"not_foreign_subsidiary"`
	Description          *string `json:"description,omitempty"`
}
