package api

import (
	"strings"

	"github.com/akmatori/article73/internal/database"
	"github.com/akmatori/article73/internal/lifecycle"
)

// IncidentToListItem converts a SeriousIncident to a compact list representation.
func IncidentToListItem(i database.SeriousIncident) IncidentListItem {
	return IncidentListItem{
		ID:                i.ID,
		Title:             i.Title,
		AISystemID:        i.AISystemID,
		AISystemName:      i.AISystemName,
		MemberState:       i.MemberState,
		Type:              i.Type,
		Severity:          i.Severity,
		Status:            i.Status,
		CausalLink:        i.CausalLink,
		DetectedAt:        i.DetectedAt,
		ReportingDeadline: i.ReportingDeadline,
		RemediationCount:  len(i.RemediationActions),
		ReportCount:       len(i.Reports),
		AuthorityNotified: i.AuthorityNotification != nil,
		DetectionMethod:   i.DetectionMethod,
		UpdatedAt:         i.UpdatedAt,
	}
}

// IncidentsToListItems converts a slice of SeriousIncidents to list items.
func IncidentsToListItems(incidents []database.SeriousIncident) []IncidentListItem {
	items := make([]IncidentListItem, len(incidents))
	for i, inc := range incidents {
		items[i] = IncidentToListItem(inc)
	}
	return items
}

// ToCreateParams converts a create request to lifecycle parameters.
// Detection defaults to manual for incidents entered through the API.
func (r CreateIncidentRequest) ToCreateParams() lifecycle.CreateParams {
	method := database.DetectionMethod(r.DetectionMethod)
	if method == "" {
		method = database.DetectionMethodManual
	}
	return lifecycle.CreateParams{
		Title:           r.Title,
		Description:     r.Description,
		AISystemID:      r.AISystemID,
		AISystemName:    r.AISystemName,
		MemberState:     r.MemberState,
		DetectionMethod: method,
		Metadata:        r.Metadata,
	}
}

// IncidentFilterFromQuery builds a store filter from list query parameters
// and pagination.
func IncidentFilterFromQuery(q map[string][]string, p PaginationParams) database.IncidentFilter {
	get := func(key string) string {
		if v := q[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	return database.IncidentFilter{
		Status:      database.IncidentStatus(get("status")),
		Severity:    database.Severity(get("severity")),
		Type:        database.IncidentType(get("type")),
		MemberState: strings.ToUpper(get("member_state")),
		AISystemID:  get("ai_system_id"),
		OpenOnly:    get("open") == "true",
		Limit:       p.PerPage,
		Offset:      p.Offset(),
	}
}
