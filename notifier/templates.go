package notifier

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/kendall-kelly/jersey-repair-api/models"
)

//go:embed templates.yaml
var templatesYAML []byte

type rawTemplate struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

// templateSet maps rule -> audience key -> template
type templateSet map[string]map[string]messageTemplate

// messageData is what the templates can reference
type messageData struct {
	OrderID        string
	ShortID        string
	Name           string
	Email          string
	Address        string
	RepairType     string
	Amount         string
	Reference      string
	DeliveryMethod string
	PreferredDate  string
}

func parseTemplates(data []byte) (templateSet, error) {
	var raw map[string]map[string]rawTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse notification templates: %w", err)
	}

	set := make(templateSet, len(raw))
	for rule, audiences := range raw {
		set[rule] = make(map[string]messageTemplate, len(audiences))
		for key, tpl := range audiences {
			name := rule + "." + key
			subject, err := template.New(name + ".subject").Option("missingkey=error").Parse(tpl.Subject)
			if err != nil {
				return nil, fmt.Errorf("template %s subject: %w", name, err)
			}
			body, err := template.New(name + ".body").Option("missingkey=error").Parse(tpl.Body)
			if err != nil {
				return nil, fmt.Errorf("template %s body: %w", name, err)
			}
			set[rule][key] = messageTemplate{subject: subject, body: body}
		}
	}
	return set, nil
}

func (s templateSet) lookup(f Firing) (messageTemplate, bool) {
	audiences, ok := s[f.Rule]
	if !ok {
		return messageTemplate{}, false
	}
	if f.Variant != "" {
		if tpl, ok := audiences[string(f.Audience)+"."+f.Variant]; ok {
			return tpl, true
		}
	}
	tpl, ok := audiences[string(f.Audience)]
	return tpl, ok
}

func (s templateSet) render(f Firing, order models.Order) (subject, body string, err error) {
	tpl, ok := s.lookup(f)
	if !ok {
		return "", "", fmt.Errorf("no template for %s/%s", f.Rule, f.Audience)
	}

	data := newMessageData(order)
	var sb, bb bytes.Buffer
	if err := tpl.subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := tpl.body.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return sb.String(), bb.String(), nil
}

func newMessageData(o models.Order) messageData {
	short := o.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return messageData{
		OrderID:        o.ID,
		ShortID:        short,
		Name:           o.ContactInfo.Name,
		Email:          o.ContactInfo.Email,
		Address:        o.ContactInfo.Address,
		RepairType:     o.RepairType,
		Amount:         o.Payment.Amount.StringFixed(2),
		Reference:      o.Payment.Reference,
		DeliveryMethod: string(o.Processing.DeliveryMethod),
		PreferredDate:  o.Processing.PreferredDate,
	}
}
