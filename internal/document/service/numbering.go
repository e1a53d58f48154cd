package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"

	documentdomain "github.com/facturasv/dte-engine/internal/document/domain"
)

// nextSequence derives the next per-tenant-per-type control-number sequence.
// The most recently created document is the only authority on the counter:
// no document means sequence 1, an unparsable suffix resets to 1.
func (s *Service) nextSequence(ctx context.Context, tenantID snowflake.ID, documentType string) (int64, error) {
	var last documentdomain.Document
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND document_type = ?", tenantID, documentType).
		Order("created_at DESC").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return 0, err
	}
	if last.ID == 0 {
		return 1, nil
	}
	return parseSequenceSuffix(last.ControlNumber) + 1, nil
}

func parseSequenceSuffix(controlNumber string) int64 {
	idx := strings.LastIndex(controlNumber, "-")
	if idx < 0 || idx == len(controlNumber)-1 {
		return 0
	}
	value, err := strconv.ParseInt(controlNumber[idx+1:], 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// formatControlNumber renders the public document-control code:
// DTE-{type}-{establishment}-{sequence padded to 15 digits}. Consumers rely
// on the trailing 15-digit zero-padded sequence.
func formatControlNumber(tenantID snowflake.ID, documentType string, sequence int64) string {
	return fmt.Sprintf("DTE-%s-%s-%015d", documentType, establishmentCode(tenantID), sequence)
}

// establishmentCode derives a stable branch/point-of-sale code from the
// tenant identifier. It must never change for a given tenant: the code is
// part of every control number already issued.
func establishmentCode(tenantID snowflake.ID) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantID.String()))
	sum := h.Sum32()
	return fmt.Sprintf("M%03dP%03d", sum%1000, (sum/1000)%1000)
}
