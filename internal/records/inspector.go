package records

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/timezen-gateway/internal/logger"
)

// KindForPath classifies a backend request path into a record kind. The
// path layout follows the realtime database tree; a trailing ".json" (the
// REST read form) is ignored.
func KindForPath(path string) Kind {
	path = strings.TrimSuffix(strings.Trim(path, "/"), ".json")
	segments := strings.Split(path, "/")

	switch {
	case contains(segments, "schedules"):
		return KindSchedule
	case contains(segments, "subjects"), contains(segments, "studySubjects"):
		return KindSubject
	case contains(segments, "studyMaterials"):
		return KindMaterial
	case len(segments) > 0 && segments[0] == "notifications":
		return KindNotice
	case len(segments) > 1 && segments[0] == "community" && segments[1] == "doubts":
		return KindDoubt
	}
	return KindUnknown
}

func contains(segments []string, want string) bool {
	for _, s := range segments {
		if s == want {
			return true
		}
	}
	return false
}

// Inspector validates backend payloads as they enter the cache. Problems
// are logged, never fatal: the live response still flows to the page, but
// malformed entries are visible in the logs instead of silently trusted.
type Inspector struct {
	log logger.Logger
}

// NewInspector creates a payload inspector.
func NewInspector(log logger.Logger) *Inspector {
	return &Inspector{log: log}
}

// Inspect validates the payload for a backend URL. Unrecognized paths and
// empty/null payloads are ignored.
func (i *Inspector) Inspect(u *url.URL, body []byte) {
	kind := KindForPath(u.Path)
	if kind == KindUnknown || len(body) == 0 || string(body) == "null" {
		return
	}

	problems := validate(kind, body)
	for _, p := range problems {
		i.log.Warn("malformed backend record",
			logger.String("kind", string(kind)),
			logger.String("path", u.Path),
			logger.String("problem", p))
	}
}

// validate decodes a payload into the kind's record type and collects its
// constraint violations. Backend reads return either a single record or a
// map of push-id → record; both shapes are handled.
func validate(kind Kind, body []byte) []string {
	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return []string{fmt.Sprintf("not a JSON object: %v", err)}
	}

	// Distinguish a collection (id → record) from a single record by
	// checking for the kind's own fields at the top level.
	if isSingle(kind, root) {
		return decodeProblems(kind, "", body)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return []string{fmt.Sprintf("not a JSON object: %v", err)}
	}

	var problems []string
	for id, v := range root.Map() {
		if _, err := v.Object(); err != nil {
			problems = append(problems, fmt.Sprintf("entry %s: not an object", id))
			continue
		}
		problems = append(problems, decodeProblems(kind, id, entries[id])...)
	}
	return problems
}

// isSingle reports whether the object looks like one record rather than a
// collection keyed by id.
func isSingle(kind Kind, obj *jason.Object) bool {
	for _, field := range signalFields(kind) {
		if _, err := obj.GetValue(field); err == nil {
			return true
		}
	}
	return false
}

// signalFields lists the fields that mark an object as a single record of
// the kind rather than a collection keyed by push id.
func signalFields(kind Kind) []string {
	switch kind {
	case KindSchedule:
		return []string{"time", "subjectId"}
	case KindSubject:
		return []string{"name"}
	case KindMaterial:
		return []string{"title", "fileUrl", "fileName"}
	case KindNotice:
		return []string{"title"}
	case KindDoubt:
		return []string{"text"}
	default:
		return nil
	}
}

// newRecord returns a zero record of the kind, or nil for KindUnknown.
func newRecord(kind Kind) record {
	switch kind {
	case KindSchedule:
		return &ScheduleSlot{}
	case KindSubject:
		return &Subject{}
	case KindMaterial:
		return &StudyMaterial{}
	case KindNotice:
		return &Notice{}
	case KindDoubt:
		return &Doubt{}
	default:
		return nil
	}
}

// decodeProblems unmarshals one raw record into its typed form and returns
// the violations, each prefixed with the entry id when part of a collection.
func decodeProblems(kind Kind, id string, raw []byte) []string {
	rec := newRecord(kind)
	if rec == nil {
		return nil
	}
	if err := json.Unmarshal(raw, rec); err != nil {
		return []string{prefix(id) + "does not decode: " + err.Error()}
	}
	var problems []string
	for _, p := range rec.problems() {
		problems = append(problems, prefix(id)+p)
	}
	return problems
}

func prefix(id string) string {
	if id == "" {
		return ""
	}
	return "entry " + id + ": "
}
