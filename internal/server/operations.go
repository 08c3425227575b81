package server

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/papermill/internal/access/domain"
	"github.com/smallbiznis/papermill/internal/config"
	creditdomain "github.com/smallbiznis/papermill/internal/credit/domain"
	"github.com/smallbiznis/papermill/internal/observability/logger"
	oplogdomain "github.com/smallbiznis/papermill/internal/oplog/domain"
	"github.com/smallbiznis/papermill/internal/pdfengine"
	"go.uber.org/zap"
)

const (
	// HeaderPurchase carries a one-time purchase claim. The cookie is the
	// fallback for plain browser form posts.
	HeaderPurchase     = "X-Papermill-Purchase"
	PurchaseCookieName = "_pm_credit"

	// HeaderAccessType reports which access path served the request.
	HeaderAccessType = "X-Papermill-Access"

	multipartMaxMemory = 32 << 20
)

const (
	opMerge     = "merge"
	opSplit     = "split"
	opCompress  = "compress"
	opWatermark = "watermark"
)

type splitManifest struct {
	Parts []pdfengine.SplitPart `json:"parts"`
	Count int                   `json:"count"`
}

// transformFunc runs the actual PDF work once access has been resolved.
// It returns the response writer for the success path.
type transformFunc func(ctx context.Context, inputs [][]byte, opts pdfengine.Options) (func(c *gin.Context), error)

func (s *Server) MergePDF(c *gin.Context) {
	s.performOperation(c, opMerge, func(ctx context.Context, inputs [][]byte, opts pdfengine.Options) (func(c *gin.Context), error) {
		out, err := s.pdfEngine.Merge(ctx, inputs, opts)
		if err != nil {
			return nil, err
		}
		return pdfResponse("merged.pdf", out), nil
	})
}

func (s *Server) SplitPDF(c *gin.Context) {
	span := 1
	if raw := strings.TrimSpace(c.PostForm("span")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			AbortWithError(c, newValidationError("span", "invalid_span", "span must be a positive integer"))
			return
		}
		span = parsed
	}

	s.performOperation(c, opSplit, func(ctx context.Context, inputs [][]byte, opts pdfengine.Options) (func(c *gin.Context), error) {
		parts, err := s.pdfEngine.Split(ctx, inputs[0], span, opts)
		if err != nil {
			return nil, err
		}
		return func(c *gin.Context) {
			c.JSON(http.StatusOK, splitManifest{Parts: parts, Count: len(parts)})
		}, nil
	})
}

func (s *Server) CompressPDF(c *gin.Context) {
	s.performOperation(c, opCompress, func(ctx context.Context, inputs [][]byte, opts pdfengine.Options) (func(c *gin.Context), error) {
		out, err := s.pdfEngine.Compress(ctx, inputs[0], opts)
		if err != nil {
			return nil, err
		}
		return pdfResponse("compressed.pdf", out), nil
	})
}

func (s *Server) WatermarkPDF(c *gin.Context) {
	text := strings.TrimSpace(c.PostForm("text"))
	if text == "" {
		AbortWithError(c, newValidationError("text", "missing_text", "watermark text is required"))
		return
	}

	s.performOperation(c, opWatermark, func(ctx context.Context, inputs [][]byte, opts pdfengine.Options) (func(c *gin.Context), error) {
		out, err := s.pdfEngine.Stamp(ctx, inputs[0], text, opts)
		if err != nil {
			return nil, err
		}
		return pdfResponse("watermarked.pdf", out), nil
	})
}

// performOperation is the shared request pipeline: validate inputs, resolve
// access, transform, then settle credit and history. The access decision is
// computed before the transform but credit is consumed only after success.
func (s *Server) performOperation(c *gin.Context, operation string, transform transformFunc) {
	c.Set("operation_type", operation)
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	limits := s.limits.Current()
	opLimits := limits.ForOperation(operation)

	inputs, fileName, totalBytes, err := s.readInputFiles(c, opLimits)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	for _, input := range inputs {
		if err := s.pdfEngine.Validate(ctx, input); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	auth := s.authContext(c)
	claim := s.extractClaim(c)
	if claim.Present {
		exists, err := s.creditSvc.PurchaseExists(ctx, claim.PurchaseID)
		if err != nil {
			log.Warn("purchase lookup failed, ignoring claim", zap.Error(err))
			claim = accessdomain.OneTimeClaim{}
		} else if !exists {
			// A forged or mistyped id never earns watermark-free output.
			log.Warn("unknown purchase id presented", zap.String("purchase_id", claim.PurchaseID))
			claim = accessdomain.OneTimeClaim{}
		}
	}

	decision := s.resolver.Resolve(ctx, auth, claim)

	opts := pdfengine.Options{
		ApplyWatermark: !decision.HasWatermarkFreeAccess,
		WatermarkText:  limits.WatermarkText,
	}

	respond, err := transform(ctx, inputs, opts)
	if err != nil {
		s.recordOperation(ctx, auth, operation, fileName, totalBytes, oplogdomain.OperationStatusFailed, decision)
		AbortWithError(c, err)
		return
	}

	if decision.ShouldConsumeCredit {
		result := s.creditSvc.Consume(ctx, decision.PurchaseID, operation)
		if result.Status == creditdomain.StatusUnknownPurchase {
			// Raced with nothing: the mint check passed earlier, so this
			// means the ledger disagrees with the mint table. Log loudly.
			log.Error("consumption found no minted purchase",
				zap.String("purchase_id", decision.PurchaseID),
				zap.String("operation", operation),
			)
		}
	}

	s.recordOperation(ctx, auth, operation, fileName, totalBytes, oplogdomain.OperationStatusCompleted, decision)

	c.Header(HeaderAccessType, string(decision.AccessType))
	respond(c)
}

// readInputFiles pulls the multipart "files" field and enforces the
// operation's count and size caps.
func (s *Server) readInputFiles(c *gin.Context, opLimits config.OperationLimits) ([][]byte, string, int64, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, "", 0, invalidRequestError()
	}
	files := form.File["files"]

	if len(files) < opLimits.MinFiles {
		return nil, "", 0, newValidationError("files", "too_few_files",
			fmt.Sprintf("at least %d file(s) required", opLimits.MinFiles))
	}
	if len(files) > opLimits.MaxFiles {
		return nil, "", 0, newValidationError("files", "too_many_files",
			fmt.Sprintf("at most %d file(s) allowed", opLimits.MaxFiles))
	}

	inputs := make([][]byte, 0, len(files))
	var totalBytes int64
	fileName := ""
	for _, header := range files {
		if header.Size > opLimits.MaxFileSize {
			return nil, "", 0, ErrPayloadTooLarge
		}
		data, err := readMultipartFile(header)
		if err != nil {
			return nil, "", 0, invalidRequestError()
		}
		if int64(len(data)) > opLimits.MaxFileSize {
			return nil, "", 0, ErrPayloadTooLarge
		}
		if fileName == "" {
			fileName = header.Filename
		}
		totalBytes += int64(len(data))
		inputs = append(inputs, data)
	}
	return inputs, fileName, totalBytes, nil
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// extractClaim reads the untrusted one-time purchase claim from the header
// or the fallback cookie. Presence alone grants nothing; the id is checked
// against the mint ledger before it influences the decision.
func (s *Server) extractClaim(c *gin.Context) accessdomain.OneTimeClaim {
	purchaseID := strings.TrimSpace(c.GetHeader(HeaderPurchase))
	if purchaseID == "" {
		if cookie, err := c.Cookie(PurchaseCookieName); err == nil {
			purchaseID = strings.TrimSpace(cookie)
		}
	}
	if purchaseID == "" {
		return accessdomain.OneTimeClaim{}
	}
	return accessdomain.OneTimeClaim{Present: true, PurchaseID: purchaseID}
}

func (s *Server) recordOperation(
	ctx context.Context,
	auth accessdomain.AuthContext,
	operation string,
	fileName string,
	sizeBytes int64,
	status oplogdomain.OperationStatus,
	decision accessdomain.AccessDecision,
) {
	var userID *snowflake.ID
	if !auth.Anonymous && auth.UserID != 0 {
		id := auth.UserID
		userID = &id
	}
	s.oplogSvc.Append(ctx, oplogdomain.AppendRequest{
		UserID:     userID,
		Type:       operation,
		FileName:   fileName,
		SizeBytes:  sizeBytes,
		Status:     status,
		AccessType: string(decision.AccessType),
		Metadata: map[string]any{
			"watermarked": !decision.HasWatermarkFreeAccess,
		},
	})
	s.obsMetrics.RecordOperation(operation, string(status), string(decision.AccessType))
}

func pdfResponse(name string, data []byte) func(c *gin.Context) {
	return func(c *gin.Context) {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Data(http.StatusOK, "application/pdf", data)
	}
}
