package permit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oarkflow/date"
)

// DSL Syntax:
// grant <subject> <action> <resource_type> [options...]
// deny  <subject> <action> <resource_type> [options...]
// engine <key>=<value>...
//
// Options:
//   id:<binding id>           priority:<n>            source:<name>
//   ids:<a,b>                 departments:<a,b>       projects:<a,b>
//   organizations:<a,b>       when:"<condition>"      expires:<time>
//   scope:<key=a,b;key=c>     inactive
//
// Each ids/departments/projects/organizations option becomes its own
// resource constraint. scope: groups several lists into one constraint,
// keys being ids, departments, projects, organizations and type. when: may
// repeat and all conditions must hold.

type DSLParser struct {
	line int
}

func NewDSLParser() *DSLParser {
	return &DSLParser{}
}

func (p *DSLParser) Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Version: 1,
		Engine:  EngineConfig{DecisionCacheTTL: DefaultDecisionTTL.Milliseconds()},
	}
	index := make(map[string]int)

	p.line = 0
	for _, raw := range strings.Split(string(data), "\n") {
		p.line++
		line := strings.TrimSpace(raw)
		if line == "" || line[0] == '#' {
			continue
		}
		parts, err := splitLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "grant", "deny":
			subject, ep, err := p.parseBinding(parts[0] == "grant", parts[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", p.line, err)
			}
			i, ok := index[subject]
			if !ok {
				i = len(cfg.Subjects)
				index[subject] = i
				cfg.Subjects = append(cfg.Subjects, SubjectConfig{ID: subject})
			}
			cfg.Subjects[i].Permissions = append(cfg.Subjects[i].Permissions, ep)
		case "engine":
			if err := p.parseEngine(cfg, parts[1:]); err != nil {
				return nil, fmt.Errorf("line %d: %w", p.line, err)
			}
		default:
			return nil, fmt.Errorf("line %d: unknown directive: %s", p.line, parts[0])
		}
	}
	return cfg, nil
}

// splitLine splits on blanks outside double quotes. Quotes are dropped and
// the quoted text stays part of the surrounding token.
func splitLine(line string) ([]string, error) {
	parts := make([]string, 0, 8)
	var cur strings.Builder
	inQuote, inToken := false, false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"':
			inQuote = !inQuote
			inToken = true
		case (ch == ' ' || ch == '\t') && !inQuote:
			if inToken {
				parts = append(parts, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteByte(ch)
			inToken = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inToken {
		parts = append(parts, cur.String())
	}
	return parts, nil
}

func (p *DSLParser) parseBinding(granted bool, parts []string) (string, EffectivePermission, error) {
	var ep EffectivePermission
	if len(parts) < 3 {
		return "", ep, fmt.Errorf("grant/deny requires: <subject> <action> <resource_type> [options]")
	}
	b := NewGrant(Action(parts[1]), ResourceType(parts[2]))
	if !granted {
		b = NewDeny(Action(parts[1]), ResourceType(parts[2]))
	}
	for _, opt := range parts[3:] {
		key, val, hasVal := strings.Cut(opt, ":")
		switch {
		case key == "inactive" && !hasVal:
			b.Inactive()
		case !hasVal:
			return "", ep, fmt.Errorf("unknown option: %s", opt)
		case key == "id":
			b.ID(val)
		case key == "source":
			b.Source(val)
		case key == "priority":
			n, err := strconv.Atoi(val)
			if err != nil {
				return "", ep, fmt.Errorf("priority: %w", err)
			}
			b.Priority(n)
		case key == "ids":
			b.OnResources(splitCSV(val)...)
		case key == "departments":
			b.InDepartments(splitCSV(val)...)
		case key == "projects":
			b.InProjects(splitCSV(val)...)
		case key == "organizations":
			b.InOrganizations(splitCSV(val)...)
		case key == "scope":
			rc, err := parseScope(ResourceType(parts[2]), val)
			if err != nil {
				return "", ep, err
			}
			b.Constraint(rc)
		case key == "when":
			c, err := ParseCondition(val)
			if err != nil {
				return "", ep, err
			}
			b.ep.Conditions = append(b.ep.Conditions, c)
		case key == "expires":
			t, err := date.Parse(val)
			if err != nil {
				return "", ep, fmt.Errorf("expires: %w", err)
			}
			b.ExpiresAt(t)
		default:
			return "", ep, fmt.Errorf("unknown option: %s", key)
		}
	}
	return parts[0], b.Build(), nil
}

func parseScope(rt ResourceType, val string) (ResourceConstraint, error) {
	rc := ResourceConstraint{ResourceType: rt}
	for _, part := range strings.Split(val, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return rc, fmt.Errorf("scope: expected key=value, got %q", part)
		}
		switch strings.TrimSpace(k) {
		case "ids":
			rc.ResourceIDs = splitCSV(v)
		case "departments":
			rc.DepartmentIDs = splitCSV(v)
		case "projects":
			rc.ProjectIDs = splitCSV(v)
		case "organizations":
			rc.OrganizationIDs = splitCSV(v)
		case "type":
			rc.ResourceType = ResourceType(strings.TrimSpace(v))
		default:
			return rc, fmt.Errorf("scope: unknown key %q", k)
		}
	}
	return rc, nil
}

func (p *DSLParser) parseEngine(cfg *Config, parts []string) error {
	for _, kv := range parts {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		var err error
		switch key {
		case "cache_ttl":
			cfg.Engine.DecisionCacheTTL, err = strconv.ParseInt(val, 10, 64)
		case "cache":
			cfg.Engine.CacheBackend = val
		case "ristretto_counters":
			cfg.Engine.RistrettoNumCounter, err = strconv.ParseInt(val, 10, 64)
		case "ristretto_max_cost":
			cfg.Engine.RistrettoMaxCost, err = strconv.ParseInt(val, 10, 64)
		case "ristretto_buffer":
			cfg.Engine.RistrettoBuffer, err = strconv.ParseInt(val, 10, 64)
		case "redis_url":
			cfg.Engine.RedisURL = val
		case "redis_prefix":
			cfg.Engine.RedisPrefix = val
		case "remote_url":
			cfg.Engine.RemoteURL = val
		case "remote_timeout":
			cfg.Engine.RemoteTimeout, err = strconv.ParseInt(val, 10, 64)
		case "remote_failure_deny":
			cfg.Engine.RemoteFailureDeny, err = strconv.ParseBool(val)
		default:
			return fmt.Errorf("unknown engine key: %s", key)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

type DSLEncoder struct {
	buf []byte
}

func NewDSLEncoder() *DSLEncoder {
	return &DSLEncoder{buf: make([]byte, 0, 4096)}
}

func (e *DSLEncoder) Encode(cfg *Config) ([]byte, error) {
	e.buf = e.buf[:0]
	for _, s := range cfg.Subjects {
		for _, ep := range s.Permissions {
			if strings.ContainsAny(s.ID, " \t\"") {
				return nil, fmt.Errorf("subject %q cannot be written as a bare token", s.ID)
			}
			if err := e.encodeBinding(s.ID, ep); err != nil {
				return nil, fmt.Errorf("subject %s binding %s: %w", s.ID, ep.ID, err)
			}
		}
	}
	e.encodeEngine(cfg.Engine)
	return e.buf, nil
}

func (e *DSLEncoder) encodeBinding(subject string, ep EffectivePermission) error {
	if ep.IsGranted {
		e.buf = append(e.buf, "grant "...)
	} else {
		e.buf = append(e.buf, "deny "...)
	}
	e.buf = append(e.buf, subject...)
	e.buf = append(e.buf, ' ')
	e.buf = append(e.buf, string(ep.Permission.Action)...)
	e.buf = append(e.buf, ' ')
	e.buf = append(e.buf, string(ep.Permission.ResourceType)...)
	if ep.ID != "" {
		if err := e.option("id", ep.ID); err != nil {
			return err
		}
	}
	if ep.Priority != 0 {
		e.buf = append(e.buf, " priority:"...)
		e.buf = strconv.AppendInt(e.buf, int64(ep.Priority), 10)
	}
	for _, rc := range ep.ResourceConstraints {
		if err := e.constraint(ep.Permission.ResourceType, rc); err != nil {
			return err
		}
	}
	for _, c := range ep.Conditions {
		text := c.String()
		if strings.ContainsRune(text, '"') {
			return fmt.Errorf("condition %s cannot be written in the DSL", text)
		}
		if c.Value.Kind() == KindList {
			if err := listEncodable(c.Value.Strings()); err != nil {
				return fmt.Errorf("condition on %s: %w", c.Field, err)
			}
		}
		e.buf = append(e.buf, ` when:"`...)
		e.buf = append(e.buf, text...)
		e.buf = append(e.buf, '"')
	}
	if ep.ExpiresAt != nil {
		e.buf = append(e.buf, " expires:"...)
		e.buf = ep.ExpiresAt.UTC().AppendFormat(e.buf, time.RFC3339)
	}
	if ep.Source != "" {
		if err := e.option("source", ep.Source); err != nil {
			return err
		}
	}
	if !ep.Permission.IsActive {
		e.buf = append(e.buf, " inactive"...)
	}
	e.buf = append(e.buf, '\n')
	return nil
}

// option writes key:val, quoting val when it holds blanks.
func (e *DSLEncoder) option(key, val string) error {
	if strings.ContainsRune(val, '"') {
		return fmt.Errorf("%s %q cannot be written in the DSL", key, val)
	}
	e.buf = append(e.buf, ' ')
	e.buf = append(e.buf, key...)
	e.buf = append(e.buf, ':')
	if strings.ContainsAny(val, " \t") {
		e.buf = append(e.buf, '"')
		e.buf = append(e.buf, val...)
		e.buf = append(e.buf, '"')
		return nil
	}
	e.buf = append(e.buf, val...)
	return nil
}

// constraint writes a single-list constraint in its short form and anything
// else as one scope: group, so the lists keep narrowing each other.
func (e *DSLEncoder) constraint(rt ResourceType, rc ResourceConstraint) error {
	lists := []struct {
		key string
		ids []string
	}{
		{"ids", rc.ResourceIDs},
		{"departments", rc.DepartmentIDs},
		{"projects", rc.ProjectIDs},
		{"organizations", rc.OrganizationIDs},
	}
	set := 0
	for _, l := range lists {
		if err := listEncodable(l.ids); err != nil {
			return fmt.Errorf("%s: %w", l.key, err)
		}
		if len(l.ids) > 0 {
			set++
		}
	}
	sameType := rc.ResourceType == "" || rc.ResourceType == rt
	if set == 1 && sameType {
		for _, l := range lists {
			if len(l.ids) > 0 {
				return e.option(l.key, strings.Join(l.ids, ","))
			}
		}
	}
	parts := make([]string, 0, 5)
	if !sameType {
		parts = append(parts, "type="+string(rc.ResourceType))
	}
	for _, l := range lists {
		if len(l.ids) > 0 {
			parts = append(parts, l.key+"="+strings.Join(l.ids, ","))
		}
	}
	return e.option("scope", strings.Join(parts, ";"))
}

func listEncodable(ids []string) error {
	for _, id := range ids {
		if id == "" || strings.TrimSpace(id) != id || strings.ContainsAny(id, ",;=[]\"") {
			return fmt.Errorf("list element %q cannot be written in the DSL", id)
		}
	}
	return nil
}

func (e *DSLEncoder) encodeEngine(ec EngineConfig) {
	start := len(e.buf)
	e.buf = append(e.buf, "engine"...)
	head := len(e.buf)
	if ec.DecisionCacheTTL > 0 {
		e.buf = append(e.buf, " cache_ttl="...)
		e.buf = strconv.AppendInt(e.buf, ec.DecisionCacheTTL, 10)
	}
	e.kv("cache", ec.CacheBackend)
	if ec.RistrettoNumCounter > 0 {
		e.buf = append(e.buf, " ristretto_counters="...)
		e.buf = strconv.AppendInt(e.buf, ec.RistrettoNumCounter, 10)
	}
	if ec.RistrettoMaxCost > 0 {
		e.buf = append(e.buf, " ristretto_max_cost="...)
		e.buf = strconv.AppendInt(e.buf, ec.RistrettoMaxCost, 10)
	}
	if ec.RistrettoBuffer > 0 {
		e.buf = append(e.buf, " ristretto_buffer="...)
		e.buf = strconv.AppendInt(e.buf, ec.RistrettoBuffer, 10)
	}
	e.kv("redis_url", ec.RedisURL)
	e.kv("redis_prefix", ec.RedisPrefix)
	e.kv("remote_url", ec.RemoteURL)
	if ec.RemoteTimeout > 0 {
		e.buf = append(e.buf, " remote_timeout="...)
		e.buf = strconv.AppendInt(e.buf, ec.RemoteTimeout, 10)
	}
	if ec.RemoteFailureDeny {
		e.buf = append(e.buf, " remote_failure_deny=true"...)
	}
	if len(e.buf) == head {
		e.buf = e.buf[:start]
		return
	}
	e.buf = append(e.buf, '\n')
}

func (e *DSLEncoder) kv(key, val string) {
	if val == "" {
		return
	}
	e.buf = append(e.buf, ' ')
	e.buf = append(e.buf, key...)
	e.buf = append(e.buf, '=')
	e.buf = append(e.buf, val...)
}
