// internal/services/export_service.go
package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
)

const subscriptionSheet = "Subscriptions"

var SubscriptionExportHeader = []string{
	"Subscription ID",
	"Patient",
	"Patient Email",
	"Provider",
	"Status",
	"Period Start",
	"Period End",
	"Nurse Visits",
	"CNA Visits",
	"Billing Reference",
}

type ExportService struct {
	store store.Store
	authz *AuthorizationService
}

func NewExportService(s store.Store, authz *AuthorizationService) *ExportService {
	return &ExportService{store: s, authz: authz}
}

// ExportSubscriptions renders every subscription matching filter into an XLSX
// workbook. Visit columns read "used/allotment".
func (s *ExportService) ExportSubscriptions(ctx context.Context, actorID uuid.UUID, filter store.SubscriptionFilter) ([]byte, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionExport); err != nil {
		return nil, err
	}

	filter.Page = store.Page{}
	subs, _, err := s.store.ListSubscriptions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	patients := map[string]*models.Patient{}
	providers := map[string]*models.Provider{}
	rows := make([][]interface{}, 0, len(subs))
	for i := range subs {
		sub := &subs[i]

		key := sub.PatientID.String()
		patient, ok := patients[key]
		if !ok {
			if patient, err = s.store.GetPatient(ctx, sub.PatientID); err != nil {
				return nil, storeError(err, "patient", sub.PatientID)
			}
			patients[key] = patient
		}

		providerName := ""
		if sub.ProviderID != nil {
			key := sub.ProviderID.String()
			provider, ok := providers[key]
			if !ok {
				if provider, err = s.store.GetProvider(ctx, *sub.ProviderID); err != nil {
					return nil, storeError(err, "provider", *sub.ProviderID)
				}
				providers[key] = provider
			}
			providerName = provider.FirstName + " " + provider.LastName
		}

		rows = append(rows, []interface{}{
			sub.ID.String(),
			patient.FirstName + " " + patient.LastName,
			patient.Email,
			providerName,
			string(sub.Status),
			sub.PeriodStart.Format("2006-01-02"),
			sub.PeriodEnd.Format("2006-01-02"),
			fmt.Sprintf("%d/%d", sub.NurseVisitsUsed, sub.NurseAllotment),
			fmt.Sprintf("%d/%d", sub.CNAVisitsUsed, sub.CNAAllotment),
			sub.BillingReference,
		})
	}

	return writeWorkbook(subscriptionSheet, SubscriptionExportHeader, rows)
}

func writeWorkbook(sheet string, headers []string, rows [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return nil, fmt.Errorf("failed to convert column number: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 20); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
