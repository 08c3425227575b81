// Package pdf renders purchase receipts. Operational PDF transforms live in
// internal/pdfengine; this package only generates documents of our own.
package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(NewProvider),
)

func NewProvider() Provider {
	return &ReceiptProvider{}
}
