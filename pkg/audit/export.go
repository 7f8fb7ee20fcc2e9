package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

func export(logs []*AuditLog, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatCSV:
		return exportCSV(logs)
	case ExportFormatNDJSON:
		return exportNDJSON(logs)
	case ExportFormatJSON, "":
		return json.MarshalIndent(logs, "", "  ")
	}
	return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
}

func exportNDJSON(logs []*AuditLog) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, log := range logs {
		if err := encoder.Encode(log); err != nil {
			return nil, fmt.Errorf("failed to encode audit log: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// exportCSV writes one row per record. Snapshots are embedded as JSON.
func exportCSV(logs []*AuditLog) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"id", "created_at", "tenant_id", "user_id", "action", "entity_type", "entity_id",
		"old_data", "new_data", "ip_address", "user_agent", "request_id",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, log := range logs {
		oldData, err := jsonCell(log.OldData)
		if err != nil {
			return nil, err
		}
		newData, err := jsonCell(log.NewData)
		if err != nil {
			return nil, err
		}

		row := []string{
			strconv.FormatInt(log.ID, 10),
			log.CreatedAt.UTC().Format(time.RFC3339),
			formatInt64Ptr(log.TenantID),
			formatInt64Ptr(log.UserID),
			log.Action,
			log.EntityType,
			log.EntityID,
			oldData,
			newData,
			log.IPAddress,
			log.UserAgent,
			log.RequestID,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func jsonCell(data map[string]any) (string, error) {
	if data == nil {
		return "", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return string(b), nil
}

func formatInt64Ptr(val *int64) string {
	if val == nil {
		return ""
	}
	return strconv.FormatInt(*val, 10)
}
