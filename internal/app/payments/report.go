package payments

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"dizimo/internal/domain"
)

const reportSheet = "Dizimo"

var reportHeader = []string{"Nome", "CPF", "Mês", "Ano", "Status", "Valor (R$)", "Pago em", "Identificador"}

// ExportCommunityReport renders the community's payments of year as XLSX.
func (s *Service) ExportCommunityReport(ctx context.Context, communityID string, year int) ([]byte, error) {
	if _, err := s.communities.GetByIDTx(ctx, s.db, communityID); err != nil {
		return nil, fmt.Errorf("failed to export report: %w", err)
	}
	rows, err := s.payments.ListByCommunityYearTx(ctx, s.db, communityID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to export report: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), reportSheet); err != nil {
		return nil, fmt.Errorf("failed to name report sheet: %w", err)
	}

	for i, h := range reportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(reportSheet, cell, h)
	}

	var total int64
	for i, r := range rows {
		line := i + 2
		p := r.Payment
		f.SetCellValue(reportSheet, fmt.Sprintf("A%d", line), r.UserName)
		f.SetCellValue(reportSheet, fmt.Sprintf("B%d", line), r.UserCPF)
		f.SetCellValue(reportSheet, fmt.Sprintf("C%d", line), string(p.Month))
		f.SetCellValue(reportSheet, fmt.Sprintf("D%d", line), p.Year)
		f.SetCellValue(reportSheet, fmt.Sprintf("E%d", line), string(p.Status))
		if p.Value != nil {
			f.SetCellValue(reportSheet, fmt.Sprintf("F%d", line), float64(*p.Value)/100)
			if p.Status == domain.PaymentStatusPaid {
				total += *p.Value
			}
		}
		if p.Date != nil {
			f.SetCellValue(reportSheet, fmt.Sprintf("G%d", line), p.Date.Format("2006-01-02"))
		}
		if p.Identifier != nil {
			f.SetCellValue(reportSheet, fmt.Sprintf("H%d", line), *p.Identifier)
		}
	}

	totalLine := len(rows) + 2
	f.SetCellValue(reportSheet, fmt.Sprintf("E%d", totalLine), "Total pago")
	f.SetCellValue(reportSheet, fmt.Sprintf("F%d", totalLine), float64(total)/100)

	f.SetColWidth(reportSheet, "A", "A", 30)
	f.SetColWidth(reportSheet, "B", "B", 14)
	f.SetColWidth(reportSheet, "C", "E", 12)
	f.SetColWidth(reportSheet, "F", "G", 12)
	f.SetColWidth(reportSheet, "H", "H", 20)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	s.logger.Info("Community report exported",
		zap.String("community_id", communityID),
		zap.Int("year", year),
		zap.Int("rows", len(rows)))
	return buf.Bytes(), nil
}
