// internal/service/materializer.go
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/unclebandit/waleopard-backend/internal/metrics"
	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/phone"
	"github.com/unclebandit/waleopard-backend/internal/repository"
)

// nameColumnCandidates are matched case-insensitively against sanitized
// header names to find a display-name column.
var nameColumnCandidates = []string{
	"name", "full_name", "first_name", "customer_name", "contact_name",
}

var (
	positionalHeaderRe = regexp.MustCompile(`^parameter([1-9][0-9]*)$`)
	headerParaRe       = regexp.MustCompile(`^headerpara([1-9][0-9]*)$`)
	buttonParaRe       = regexp.MustCompile(`^buttonpara([1-9][0-9]*)$`)
)

// Skip reasons counted per rejected row.
const (
	SkipReasonPhone        = "unresolvable_phone"
	SkipReasonDuplicate    = "duplicate_phone"
	SkipReasonMissingParam = "missing_body_params"
	SkipReasonManual       = "covered_by_manual_recipient"
)

// MaterializerService resolves batch rows against a template into concrete
// recipient rows. Preview and commit share this resolution path so what an
// operator sees is exactly what gets persisted.
type MaterializerService struct {
	Batches   repository.BatchRepositoryInterface
	Templates repository.TemplateRepositoryInterface
	Contacts  repository.ContactRepositoryInterface
	Log       *slog.Logger
}

func NewMaterializerService(
	batches repository.BatchRepositoryInterface,
	templates repository.TemplateRepositoryInterface,
	contacts repository.ContactRepositoryInterface,
	log *slog.Logger,
) *MaterializerService {
	return &MaterializerService{Batches: batches, Templates: templates, Contacts: contacts, Log: log}
}

// MaterializeRequest selects a batch and a template plus optional overrides.
// Mapping entries override the automatic header mapping: header name to a
// target such as "parameter2", a named token, "headerpara1" or "buttonpara1".
type MaterializeRequest struct {
	BusinessID  int
	CampaignID  int
	BatchID     int
	TemplateRef string
	PhoneField  string
	Mapping     map[string]string
	Normalize   bool
	Deduplicate bool
	Limit       int
}

// MaterializedRow is one accepted recipient-to-be.
type MaterializedRow struct {
	RowIndex     int               `json:"row_index"`
	Phone        string            `json:"phone"`
	RawPhone     string            `json:"raw_phone"`
	DisplayName  string            `json:"display_name"`
	ContactID    *int              `json:"contact_id,omitempty"`
	BodyParams   []string          `json:"body_params"`
	ButtonParams map[string]string `json:"button_params,omitempty"`
	Attributes   map[string]string `json:"attributes"`
}

// SkippedRow records one rejected row with every reason that applied.
type SkippedRow struct {
	RowIndex int      `json:"row_index"`
	RawPhone string   `json:"raw_phone"`
	Reasons  []string `json:"reasons"`
}

// MaterializeResult is the shared preview/commit outcome.
type MaterializeResult struct {
	BatchID      int                    `json:"batch_id"`
	Template     *model.MessageTemplate `json:"template"`
	Rows         []MaterializedRow      `json:"rows"`
	Skipped      []SkippedRow           `json:"skipped"`
	Materialized int                    `json:"materialized"`
	SkippedCount int                    `json:"skipped_count"`
}

// columnMapping is the resolved header-to-slot assignment for one batch.
type columnMapping struct {
	phoneCol   string
	nameCol    string
	bodySlots  map[string]int    // header -> 1-based body slot
	namedSlots map[string]string // header -> named token
	headerPara map[string]string // header -> header param key ("1", "2", ...)
	buttonPara map[string]string // header -> button param key
}

// Materialize resolves up to req.Limit rows (0 means all) of a ready batch.
// Rejected rows are reported, never silently dropped.
func (s *MaterializerService) Materialize(ctx context.Context, req MaterializeRequest) (*MaterializeResult, error) {
	batch, err := s.Batches.GetByID(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != model.BatchStatusReady {
		return nil, fmt.Errorf("batch %d is %s, not ready for materialization", batch.ID, batch.Status)
	}

	tmpl, err := s.Templates.Resolve(ctx, req.BusinessID, req.TemplateRef)
	if err != nil {
		return nil, err
	}

	mapping, err := s.resolveMapping(batch.Headers, tmpl, req)
	if err != nil {
		return nil, err
	}

	rows, err := s.Batches.ListRows(ctx, batch.ID, req.Limit)
	if err != nil {
		return nil, err
	}

	contacts, err := s.prefetchContacts(ctx, req.BusinessID, rows, mapping.phoneCol)
	if err != nil {
		return nil, err
	}

	result := &MaterializeResult{BatchID: batch.ID, Template: tmpl}
	seen := map[string]bool{}

	for i, row := range rows {
		// Cooperative cancellation between row chunks.
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		normalized, rejectReasons := s.resolvePhone(row, mapping.phoneCol, req.Normalize)
		if len(rejectReasons) > 0 {
			result.Skipped = append(result.Skipped, SkippedRow{
				RowIndex: row.RowIndex, RawPhone: row.RawPhone, Reasons: rejectReasons})
			countSkips(rejectReasons)
			continue
		}
		if seen[normalized] {
			if req.Deduplicate {
				reasons := []string{SkipReasonDuplicate}
				result.Skipped = append(result.Skipped, SkippedRow{
					RowIndex: row.RowIndex, RawPhone: row.RawPhone, Reasons: reasons})
				countSkips(reasons)
				continue
			}
			// Deduplication is still enforced at persist time; without the
			// flag the duplicate simply wins last here.
		}
		seen[normalized] = true

		mr := MaterializedRow{
			RowIndex:     row.RowIndex,
			Phone:        normalized,
			RawPhone:     row.RawPhone,
			Attributes:   row.Data,
			ButtonParams: map[string]string{},
		}
		if c, ok := contacts[normalized]; ok {
			id := c.ID
			mr.ContactID = &id
			mr.DisplayName = c.Name
		}
		if mr.DisplayName == "" && mapping.nameCol != "" {
			mr.DisplayName = strings.TrimSpace(row.Data[mapping.nameCol])
		}

		body := make([]string, tmpl.BodyParamCount)
		for header, slot := range mapping.bodySlots {
			if slot >= 1 && slot <= len(body) {
				body[slot-1] = strings.TrimSpace(row.Data[header])
			}
		}
		for header, key := range mapping.headerPara {
			if v := strings.TrimSpace(row.Data[header]); v != "" {
				mr.ButtonParams["header"+key] = v
			}
		}
		for header, key := range mapping.buttonPara {
			if v := strings.TrimSpace(row.Data[header]); v != "" {
				mr.ButtonParams[key] = v
			}
		}

		// The required-slot check runs before the slot 1 default is written,
		// but a blank slot 1 counts as satisfiable when a display name exists,
		// so an otherwise complete row is not rejected for the default alone.
		filled := 0
		for i, v := range body {
			if v != "" || (i == 0 && mr.DisplayName != "") {
				filled++
			}
		}
		if filled < tmpl.BodyParamCount {
			reason := fmt.Sprintf("missing body parameter(s): expected %d, got %d", tmpl.BodyParamCount, filled)
			result.Skipped = append(result.Skipped, SkippedRow{
				RowIndex: row.RowIndex, RawPhone: row.RawPhone, Reasons: []string{reason}})
			metrics.RecipientsSkipped.WithLabelValues(SkipReasonMissingParam).Inc()
			continue
		}
		if len(body) > 0 && body[0] == "" {
			body[0] = mr.DisplayName
		}
		mr.BodyParams = body

		result.Rows = append(result.Rows, mr)
	}

	result.Materialized = len(result.Rows)
	result.SkippedCount = len(result.Skipped)

	metrics.RecipientsMaterialized.Add(float64(len(result.Rows)))
	s.Log.Info("batch materialized",
		slog.Int("batch_id", batch.ID),
		slog.String("template", tmpl.Name),
		slog.Int("accepted", len(result.Rows)),
		slog.Int("skipped", len(result.Skipped)))
	return result, nil
}

// resolvePhone prefers the ingestion-time normalization. A phone-field
// override always re-normalizes from the raw cell value; the renormalize flag
// forces a fresh pass over the ingestion raw value too.
func (s *MaterializerService) resolvePhone(row model.BatchRow, phoneCol string, renormalize bool) (string, []string) {
	if phoneCol != "" {
		normalized, err := phone.Normalize(row.Data[phoneCol])
		if err != nil {
			return "", []string{SkipReasonPhone + ": " + err.Error()}
		}
		return normalized, nil
	}
	if renormalize {
		normalized, err := phone.Normalize(row.RawPhone)
		if err != nil {
			return "", []string{SkipReasonPhone + ": " + err.Error()}
		}
		return normalized, nil
	}
	if row.NormalizedPhone != nil {
		return *row.NormalizedPhone, nil
	}
	reason := SkipReasonPhone
	if row.PhoneError != nil {
		reason += ": " + *row.PhoneError
	}
	return "", []string{reason}
}

// resolveMapping builds the automatic header mapping and applies explicit
// overrides on top.
func (s *MaterializerService) resolveMapping(headers []string, tmpl *model.MessageTemplate, req MaterializeRequest) (*columnMapping, error) {
	m := &columnMapping{
		bodySlots:  map[string]int{},
		namedSlots: map[string]string{},
		headerPara: map[string]string{},
		buttonPara: map[string]string{},
	}

	namedIndex := map[string]int{}
	for i, tok := range tmpl.NamedTokens {
		namedIndex[strings.ToLower(tok)] = i + 1
	}

	for _, header := range headers {
		key := canonicalHeader(header)
		switch {
		case positionalHeaderRe.MatchString(key):
			n, _ := strconv.Atoi(positionalHeaderRe.FindStringSubmatch(key)[1])
			m.bodySlots[header] = n
		case headerParaRe.MatchString(key):
			m.headerPara[header] = headerParaRe.FindStringSubmatch(key)[1]
		case buttonParaRe.MatchString(key):
			m.buttonPara[header] = buttonParaRe.FindStringSubmatch(key)[1]
		default:
			if slot, ok := namedIndex[key]; ok {
				m.bodySlots[header] = slot
				m.namedSlots[header] = tmpl.NamedTokens[slot-1]
			}
		}
		if m.nameCol == "" {
			for _, cand := range nameColumnCandidates {
				if key == cand {
					m.nameCol = header
				}
			}
		}
	}

	for header, target := range req.Mapping {
		if !containsHeader(headers, header) {
			return nil, fmt.Errorf("mapped column %q is not in the batch headers", header)
		}
		key := canonicalHeader(target)
		switch {
		case positionalHeaderRe.MatchString(key):
			n, _ := strconv.Atoi(positionalHeaderRe.FindStringSubmatch(key)[1])
			m.bodySlots[header] = n
		case headerParaRe.MatchString(key):
			m.headerPara[header] = headerParaRe.FindStringSubmatch(key)[1]
		case buttonParaRe.MatchString(key):
			m.buttonPara[header] = buttonParaRe.FindStringSubmatch(key)[1]
		default:
			slot, ok := namedIndex[key]
			if !ok {
				return nil, fmt.Errorf("mapping target %q matches no template parameter", target)
			}
			m.bodySlots[header] = slot
			m.namedSlots[header] = tmpl.NamedTokens[slot-1]
		}
	}

	if req.PhoneField != "" {
		if !containsHeader(headers, req.PhoneField) {
			return nil, fmt.Errorf("phone field %q is not in the batch headers", req.PhoneField)
		}
		m.phoneCol = req.PhoneField
	}
	return m, nil
}

func (s *MaterializerService) prefetchContacts(ctx context.Context, businessID int, rows []model.BatchRow, phoneCol string) (map[string]model.Contact, error) {
	phones := make([]string, 0, len(rows))
	for _, row := range rows {
		if phoneCol != "" {
			if normalized, err := phone.Normalize(row.Data[phoneCol]); err == nil {
				phones = append(phones, normalized)
			}
			continue
		}
		if row.NormalizedPhone != nil {
			phones = append(phones, *row.NormalizedPhone)
		}
	}
	return s.Contacts.GetByPhones(ctx, businessID, phones)
}

func canonicalHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	return h
}

func containsHeader(headers []string, h string) bool {
	for _, header := range headers {
		if header == h {
			return true
		}
	}
	return false
}

func countSkips(reasons []string) {
	for _, r := range reasons {
		label := r
		if i := strings.Index(label, ":"); i > 0 {
			label = label[:i]
		}
		metrics.RecipientsSkipped.WithLabelValues(label).Inc()
	}
}

// IdempotencyKey derives the stable per-recipient key from campaign, phone
// and the serialized parameter sets. Re-materializing identical data yields
// the same key.
func IdempotencyKey(campaignID int, phoneNumber string, body []string, buttons map[string]string) string {
	if body == nil {
		body = []string{}
	}
	if buttons == nil {
		buttons = map[string]string{}
	}
	bodyJSON, _ := json.Marshal(body)
	buttonJSON, _ := json.Marshal(buttons)
	sum := sha256.Sum256(fmt.Appendf(nil, "%d|%s|%s|%s", campaignID, phoneNumber, bodyJSON, buttonJSON))
	return hex.EncodeToString(sum[:])
}
