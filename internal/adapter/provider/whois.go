package provider

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// rdapURL is the rdap.org bootstrap service, which redirects to the authoritative server.
const rdapURL = "https://rdap.org"

// WhoisProvider fetches registration data over RDAP. No credentials are needed.
type WhoisProvider struct {
	client  Doer
	baseURL string
	logger  *slog.Logger
}

func NewWhoisProvider(client Doer, opts ...Option) *WhoisProvider {
	o := buildOptions(rdapURL, opts)
	return &WhoisProvider{
		client:  orDefault(client),
		baseURL: o.baseURL,
		logger:  o.logger,
	}
}

func (p *WhoisProvider) Name() domain.SourceName {
	return domain.SourceWhois
}

type rdapResponse struct {
	LDHName     string           `json:"ldhName"`
	Name        string           `json:"name"`
	Country     string           `json:"country"`
	Status      []string         `json:"status"`
	Entities    []rdapEntity     `json:"entities"`
	Nameservers []rdapNameserver `json:"nameservers"`
	Events      []rdapEvent      `json:"events"`
}

type rdapEntity struct {
	Roles      []string     `json:"roles"`
	VCardArray []any        `json:"vcardArray"`
	Entities   []rdapEntity `json:"entities"`
}

type rdapNameserver struct {
	LDHName string `json:"ldhName"`
}

type rdapEvent struct {
	EventAction string `json:"eventAction"`
	EventDate   string `json:"eventDate"`
}

type WhoisDomainReport struct {
	DomainName     string `json:"domain_name"`
	Registrar      string `json:"registrar"`
	CreationDate   string `json:"creation_date"`
	ExpirationDate string `json:"expiration_date"`
	Status         string `json:"status"`
	NameServers    string `json:"name_servers"`
}

type WhoisIPReport struct {
	Org     string `json:"org"`
	Network string `json:"network"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
}

func (p *WhoisProvider) LookupDomain(ctx context.Context, name string) domain.LookupOutcome {
	var data rdapResponse
	outcome, ok := fetchJSON(ctx, p.client, p.logger, call{
		source:  domain.SourceWhois,
		url:     p.baseURL + "/domain/" + url.PathEscape(name),
		headers: map[string]string{"Accept": "application/rdap+json"},
	}, &data)
	if !ok {
		return outcome
	}

	report := WhoisDomainReport{
		DomainName:     strings.ToLower(data.LDHName),
		Registrar:      "Unknown",
		CreationDate:   "Unknown",
		ExpirationDate: "Unknown",
		Status:         "Unknown",
		NameServers:    "Unknown",
	}
	if report.DomainName == "" {
		report.DomainName = name
	}

	for _, event := range data.Events {
		switch strings.ToLower(event.EventAction) {
		case "registration":
			report.CreationDate = event.EventDate
		case "expiration":
			report.ExpirationDate = event.EventDate
		}
	}

	if len(data.Status) > 0 {
		report.Status = strings.Join(data.Status, ", ")
	}

	var servers []string
	for _, ns := range data.Nameservers {
		if ns.LDHName != "" {
			servers = append(servers, strings.ToLower(ns.LDHName))
		}
	}
	if len(servers) > 0 {
		report.NameServers = strings.Join(servers, ", ")
	}

	for _, entity := range data.Entities {
		if hasRole(entity.Roles, "registrar") {
			if fn := vcardField(entity.VCardArray, "fn"); fn != "" {
				report.Registrar = fn
			}
		}
	}

	return domain.Succeeded(report)
}

func (p *WhoisProvider) LookupIP(ctx context.Context, ip string) domain.LookupOutcome {
	var data rdapResponse
	outcome, ok := fetchJSON(ctx, p.client, p.logger, call{
		source:  domain.SourceWhois,
		url:     p.baseURL + "/ip/" + url.PathEscape(ip),
		headers: map[string]string{"Accept": "application/rdap+json"},
	}, &data)
	if !ok {
		return outcome
	}

	report := WhoisIPReport{
		Org:     "Unknown",
		Network: orUnknown(data.Name),
		Address: "Unknown",
		City:    "Unknown",
		Country: orUnknown(data.Country),
	}

	if entity, found := findEntity(data.Entities, "registrant"); found {
		if org := vcardField(entity.VCardArray, "fn"); org != "" {
			report.Org = org
		}
		if label, city := vcardAddress(entity.VCardArray); label != "" || city != "" {
			report.Address = orUnknown(label)
			report.City = orUnknown(city)
		}
	}

	return domain.Succeeded(report)
}

func findEntity(entities []rdapEntity, role string) (rdapEntity, bool) {
	for _, entity := range entities {
		if hasRole(entity.Roles, role) {
			return entity, true
		}
		if nested, ok := findEntity(entity.Entities, role); ok {
			return nested, true
		}
	}
	return rdapEntity{}, false
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// vcardProperties unwraps ["vcard", [[name, params, type, value], ...]].
func vcardProperties(vcardArray []any) [][]any {
	if len(vcardArray) < 2 {
		return nil
	}
	items, ok := vcardArray[1].([]any)
	if !ok {
		return nil
	}

	var props [][]any
	for _, item := range items {
		if field, ok := item.([]any); ok && len(field) >= 4 {
			props = append(props, field)
		}
	}
	return props
}

func vcardField(vcardArray []any, name string) string {
	for _, field := range vcardProperties(vcardArray) {
		if key, ok := field[0].(string); ok && strings.EqualFold(key, name) {
			if value, ok := field[3].(string); ok {
				return value
			}
		}
	}
	return ""
}

// vcardAddress returns the address label parameter and the locality component of "adr".
func vcardAddress(vcardArray []any) (label, city string) {
	for _, field := range vcardProperties(vcardArray) {
		if key, ok := field[0].(string); !ok || !strings.EqualFold(key, "adr") {
			continue
		}
		if params, ok := field[1].(map[string]any); ok {
			if l, ok := params["label"].(string); ok {
				label = strings.ReplaceAll(strings.TrimSpace(l), "\n", ", ")
			}
		}
		// adr value: [pobox, ext, street, locality, region, code, country]
		if parts, ok := field[3].([]any); ok && len(parts) > 3 {
			city, _ = parts[3].(string)
		}
		return label, city
	}
	return "", ""
}
