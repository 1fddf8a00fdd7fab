package job

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Params is the typed form of Spec.Parameters. Each job type has exactly one
// concrete variant.
type Params interface {
	JobType() Type
}

// Common holds fields shared by every variant.
type Common struct {
	Port        int  `param:"port" validate:"omitempty,min=1,max=65535"`
	Tasks       int  `param:"tasks" validate:"omitempty,min=1,max=64"`
	StopOnFirst bool `param:"stop_on_first" validate:"-"`
}

// BruteforceParams tries every entry of UserList with every entry of PassList.
type BruteforceParams struct {
	Common
	Service  string `param:"service" validate:"required,service"`
	UserList string `param:"user_list" validate:"required"`
	PassList string `param:"pass_list" validate:"required"`
}

// SprayParams tries one Password against every entry of UserList.
type SprayParams struct {
	Common
	Service  string `param:"service" validate:"required,service"`
	UserList string `param:"user_list" validate:"required"`
	Password string `param:"password" validate:"required"`
}

// ComboParams reads user:password pairs from ComboList.
type ComboParams struct {
	Common
	Service   string `param:"service" validate:"required,service"`
	ComboList string `param:"combo_list" validate:"required"`
}

// HTTPFormParams describes a login form. Form must carry the ^USER^ and
// ^PASS^ placeholders; Failure is a string present only on failed logins.
type HTTPFormParams struct {
	Common
	UserList string `param:"user_list" validate:"required"`
	PassList string `param:"pass_list" validate:"required"`
	Path     string `param:"path" validate:"required,startswith=/"`
	Form     string `param:"form" validate:"required,contains=^USER^,contains=^PASS^"`
	Failure  string `param:"failure" validate:"required"`
	TLS      bool   `param:"tls" validate:"-"`
}

func (BruteforceParams) JobType() Type { return TypeBruteforce }
func (SprayParams) JobType() Type      { return TypeSpray }
func (ComboParams) JobType() Type      { return TypeCombo }
func (HTTPFormParams) JobType() Type   { return TypeHTTPForm }

// Services lists the protocol names accepted in the service parameter.
var Services = []string{"ssh", "ftp", "telnet", "rdp", "smb", "mysql", "postgres", "vnc", "pop3", "imap", "smtp"}

// parameter keys
const (
	keyService     = "service"
	keyUserList    = "user_list"
	keyPassList    = "pass_list"
	keyPassword    = "password"
	keyComboList   = "combo_list"
	keyPort        = "port"
	keyTasks       = "tasks"
	keyStopOnFirst = "stop_on_first"
	keyPath        = "path"
	keyForm        = "form"
	keyFailure     = "failure"
	keyTLS         = "tls"
)

var allowedKeys = map[Type][]string{
	TypeBruteforce: {keyService, keyUserList, keyPassList, keyPort, keyTasks, keyStopOnFirst},
	TypeSpray:      {keyService, keyUserList, keyPassword, keyPort, keyTasks, keyStopOnFirst},
	TypeCombo:      {keyService, keyComboList, keyPort, keyTasks, keyStopOnFirst},
	TypeHTTPForm:   {keyUserList, keyPassList, keyPath, keyForm, keyFailure, keyPort, keyTasks, keyTLS},
}

// DecodeParams converts the free-form parameter map of a spec into its typed
// variant. It checks value types and unknown keys but not required fields;
// that is left to Validate.
func DecodeParams(t Type, raw map[string]any) (Params, error) {
	allowed, ok := allowedKeys[t]
	if !ok {
		return nil, &ValidationError{Field: "type", Reason: "must be one of: " + joinTypes()}
	}
	if err := checkKeys(raw, allowed); err != nil {
		return nil, err
	}

	d := decoder{raw: raw}
	common := Common{
		Port:        d.int(keyPort),
		Tasks:       d.int(keyTasks),
		StopOnFirst: d.bool(keyStopOnFirst),
	}

	var p Params
	switch t {
	case TypeBruteforce:
		p = BruteforceParams{
			Common:   common,
			Service:  strings.ToLower(d.string(keyService)),
			UserList: d.string(keyUserList),
			PassList: d.string(keyPassList),
		}
	case TypeSpray:
		p = SprayParams{
			Common:   common,
			Service:  strings.ToLower(d.string(keyService)),
			UserList: d.string(keyUserList),
			Password: d.string(keyPassword),
		}
	case TypeCombo:
		p = ComboParams{
			Common:    common,
			Service:   strings.ToLower(d.string(keyService)),
			ComboList: d.string(keyComboList),
		}
	case TypeHTTPForm:
		p = HTTPFormParams{
			Common:   common,
			UserList: d.string(keyUserList),
			PassList: d.string(keyPassList),
			Path:     d.string(keyPath),
			Form:     d.string(keyForm),
			Failure:  d.string(keyFailure),
			TLS:      d.bool(keyTLS),
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return p, nil
}

func checkKeys(raw map[string]any, allowed []string) error {
	set := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		set[k] = struct{}{}
	}
	var unknown []string
	for k := range raw {
		if _, ok := set[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return &ValidationError{
		Field:  "parameters." + unknown[0],
		Reason: "unknown parameter (allowed: " + strings.Join(allowed, ", ") + ")",
	}
}

// decoder keeps the first conversion error so the variant switch stays flat.
type decoder struct {
	raw map[string]any
	err error
}

func (d *decoder) string(key string) string {
	v, ok := d.raw[key]
	if !ok || d.err != nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		d.err = &ValidationError{Field: "parameters." + key, Reason: "must be a string"}
		return ""
	}
	return strings.TrimSpace(s)
}

func (d *decoder) int(key string) int {
	v, ok := d.raw[key]
	if !ok || d.err != nil {
		return 0
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		d.err = &ValidationError{Field: "parameters." + key, Reason: "must be an integer"}
		return 0
	}
	return n
}

func (d *decoder) bool(key string) bool {
	v, ok := d.raw[key]
	if !ok || d.err != nil {
		return false
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		d.err = &ValidationError{Field: "parameters." + key, Reason: "must be a boolean"}
		return false
	}
	return b
}

func joinTypes() string {
	names := make([]string, 0, len(Types()))
	for _, t := range Types() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

// ServiceOf returns the protocol a job attacks, as used in hydra's service
// argument and in extracted credential records.
func ServiceOf(p Params) string {
	switch v := p.(type) {
	case BruteforceParams:
		return v.Service
	case SprayParams:
		return v.Service
	case ComboParams:
		return v.Service
	case HTTPFormParams:
		if v.TLS {
			return "https-post-form"
		}
		return "http-post-form"
	}
	return ""
}

// PortOf returns the explicit port of p or 0.
func PortOf(p Params) int {
	switch v := p.(type) {
	case BruteforceParams:
		return v.Port
	case SprayParams:
		return v.Port
	case ComboParams:
		return v.Port
	case HTTPFormParams:
		return v.Port
	}
	return 0
}

// FormArg renders the form as hydra's "path:body:F=failure" module option.
// Colons inside the body and failure text are escaped so hydra does not read
// them as separators.
func (p HTTPFormParams) FormArg() string {
	return fmt.Sprintf("%s:%s:F=%s", p.Path, formEscaper.Replace(p.Form), formEscaper.Replace(p.Failure))
}

var formEscaper = strings.NewReplacer(":", `\:`)
