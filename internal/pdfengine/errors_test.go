package pdfengine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"encrypted", errors.New("pdfcpu: please provide the correct password"), ErrEncrypted},
		{"encrypt keyword", errors.New("this file is encrypted"), ErrEncrypted},
		{"validation", errors.New("pdfcpu: validation error"), ErrCorrupt},
		{"xref", errors.New("pdfcpu: no xref section found"), ErrCorrupt},
		{"truncated", errors.New("unexpected EOF"), ErrCorrupt},
		{"other", errors.New("out of memory"), ErrInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			if tc.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tc.want)
		})
	}
}
