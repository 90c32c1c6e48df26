package services

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/ecoreceipt/backend/internal/models"
)

// ReceiptService renders the barcode artifact for a committed
// transaction and records where it landed. The ledger never depends on
// this succeeding.
type ReceiptService struct {
	db  *sql.DB
	dir string
}

func NewReceiptService(db *sql.DB, dir string) *ReceiptService {
	return &ReceiptService{db: db, dir: dir}
}

// RenderReceipt writes the QR image for the transaction and stores its
// path on the receipt row. The payload is enough for a reader to locate
// the transaction without decoding anything else.
func (rs *ReceiptService) RenderReceipt(tr *models.Transaction) (string, error) {
	if err := os.MkdirAll(rs.dir, 0o755); err != nil {
		return "", err
	}

	payload := fmt.Sprintf("ECR|%s|%s|%d", tr.PublicID, tr.Amount.StringFixed(2), tr.CreatedAt.Unix())
	filename := uuid.NewString() + ".png"
	path := filepath.Join(rs.dir, filename)

	if err := qrcode.WriteFile(payload, qrcode.Medium, 256, path); err != nil {
		return "", err
	}

	if _, err := rs.db.Exec(`
		UPDATE receipts SET img_path = $1 WHERE id = $2`, path, tr.ReceiptID); err != nil {
		// The file exists but the row does not point at it; remove the
		// orphan so the directory does not accumulate strays.
		os.Remove(path)
		return "", err
	}
	return path, nil
}
