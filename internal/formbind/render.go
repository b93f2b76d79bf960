package formbind

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
)

var formTmpl = template.Must(template.New("form").Parse(`
{{- define "field" -}}
{{- if eq .Kind "object" -}}
<fieldset class="form-object" id="fs-{{.Name}}">
  <legend>{{.Title}}</legend>
  {{- with .Description}}<p class="help">{{.}}</p>{{end}}
  {{- range .Children}}{{template "field" .}}{{end}}
</fieldset>
{{- else -}}
<div class="form-field kind-{{.Kind}}">
  <label for="f-{{.Name}}">{{.Title}}{{if .Required}} <span class="required">*</span>{{end}}</label>
  {{- if eq .Kind "boolean"}}
  <input type="hidden" name="{{.Name}}.present" value="1">
  <input type="checkbox" id="f-{{.Name}}" name="{{.Name}}" value="true"{{if .Checked}} checked{{end}}>
  {{- else if eq .Kind "enum"}}
  <select id="f-{{.Name}}" name="{{.Name}}"{{if .Required}} required{{end}}>
    {{- if not .Required}}<option value=""></option>{{end}}
    {{- range .Options}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Value}}</option>{{end}}
  </select>
  {{- else if eq .Kind "json"}}
  <textarea id="f-{{.Name}}" name="{{.Name}}" rows="6">{{.Value}}</textarea>
  {{- else}}
  <input type="{{.InputType}}" id="f-{{.Name}}" name="{{.Name}}" value="{{.Value}}"{{if .Step}} step="{{.Step}}"{{end}}{{if .Required}} required{{end}}>
  {{- end}}
  {{- with .Description}}<p class="help">{{.}}</p>{{end}}
  {{- with .Error}}<p class="error">{{.}}</p>{{end}}
</div>
{{- end -}}
{{- end -}}
<div class="schema-form">
{{- with .Title}}<h3>{{.}}</h3>{{end}}
{{- with .Description}}<p class="help">{{.}}</p>{{end}}
{{- range .Fields}}{{template "field" .}}{{end}}
</div>
`))

type renderForm struct {
	Title       string
	Description string
	Fields      []renderField
}

type renderField struct {
	Name        string
	Title       string
	Description string
	Kind        Kind
	Required    bool
	InputType   string
	Step        string
	Value       string
	Checked     bool
	Options     []renderOption
	Error       string
	Children    []renderField
}

type renderOption struct {
	Value    string
	Selected bool
}

func (g *SchemaGenerator) Render(w io.Writer, d *Descriptor, value map[string]any) error {
	return RenderWithErrors(w, d, value, nil)
}

// RenderWithErrors renders the form with per-field messages from a failed Apply.
func RenderWithErrors(w io.Writer, d *Descriptor, value map[string]any, errs FieldErrors) error {
	if d == nil {
		return fmt.Errorf("render: nil descriptor")
	}
	form := renderForm{
		Title:       d.Title,
		Description: d.Description,
		Fields:      buildFields(d.Fields, value, errs),
	}
	return formTmpl.Execute(w, form)
}

func buildFields(fields []Field, value map[string]any, errs FieldErrors) []renderField {
	out := make([]renderField, 0, len(fields))
	for _, f := range fields {
		cur, present := value[f.Key]
		if !present && f.HasDefault {
			cur, present = f.Default, true
		}
		rf := renderField{
			Name:        f.Name,
			Title:       f.Title,
			Description: f.Description,
			Kind:        f.Kind,
			Required:    f.Required,
			Error:       errs[f.Name],
		}
		switch f.Kind {
		case KindObject:
			child, _ := cur.(map[string]any)
			rf.Children = buildFields(f.Fields, child, errs)
		case KindBoolean:
			b, _ := cur.(bool)
			rf.Checked = b
		case KindEnum:
			for _, opt := range f.Enum {
				s := scalarText(opt)
				rf.Options = append(rf.Options, renderOption{Value: s, Selected: present && s == scalarText(cur)})
			}
		case KindJSON:
			if present {
				raw, err := json.MarshalIndent(cur, "", "  ")
				if err == nil {
					rf.Value = string(raw)
				}
			}
		default:
			rf.InputType = "text"
			switch f.Kind {
			case KindInteger:
				rf.InputType, rf.Step = "number", "1"
			case KindNumber:
				rf.InputType, rf.Step = "number", "any"
			}
			if present && cur != nil {
				rf.Value = scalarText(cur)
			}
		}
		out = append(out, rf)
	}
	return out
}

func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
