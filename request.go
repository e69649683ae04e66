package permit

import (
	"fmt"
	"strings"
)

// ParseResource splits "type:id" into its parts. A bare "type" names no
// specific instance.
func ParseResource(s string) (ResourceType, string) {
	rt, id, _ := strings.Cut(strings.TrimSpace(s), ":")
	return ResourceType(rt), id
}

// ParseRequest builds a CheckRequest from textual parts, e.g. ("read",
// "document:doc-1", []string{"status=draft", "departmentId=d1"}).
func ParseRequest(action, resource string, attrs []string) (CheckRequest, error) {
	if action == "" {
		return CheckRequest{}, fmt.Errorf("action required")
	}
	rt, id := ParseResource(resource)
	if rt == "" {
		return CheckRequest{}, fmt.Errorf("resource type required in %q", resource)
	}
	req := CheckRequest{Action: Action(action), ResourceType: rt, ResourceID: id}
	for _, kv := range attrs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return CheckRequest{}, fmt.Errorf("context attribute %q is not key=value", kv)
		}
		if req.Context == nil {
			req.Context = make(Context)
		}
		req.Context[k] = literal(v)
	}
	return req, nil
}
