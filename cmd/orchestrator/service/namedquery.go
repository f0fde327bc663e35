package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/logger"
)

// Template grammar constants. A template is a list of &-separated
// key=value pairs; values of the form pN are replaced by the caller's
// Nth positional argument, and pairs keyed by the additional-arg marker
// append their value to the argument list before substitution.
const (
	templatePairSeparator = "&"
	templateElementSep    = "="
	additionalArgMarker   = "#"
	parameterPrefix       = "p"
)

// TemplateStore resolves stored named-query templates
type TemplateStore interface {
	GetByName(ctx context.Context, customer int, name string) (*models.NamedQuery, error)
}

// NamedQueryParser turns a stored template plus caller arguments into a
// parsed query. Parse failures mark the query faulty rather than
// returning an error; a faulty query is never executed.
type NamedQueryParser struct {
	log *logger.Logger
}

// NewNamedQueryParser creates a new named-query parser
func NewNamedQueryParser(log *logger.Logger) *NamedQueryParser {
	return &NamedQueryParser{log: log}
}

// Parse parses template against args for the given customer and query name
func (p *NamedQueryParser) Parse(customer int, name, template string, args []string) *models.ParsedNamedQuery {
	q := &models.ParsedNamedQuery{Customer: customer, Name: name}
	p.parseInto(q, nil, template, args)
	return q
}

// ParseStored parses a template for a stored projection (pdf, zip). The
// objectname key is honoured and storage keys are expanded from
// keyTemplate, which may reference {customer}, {queryname} and {args}.
func (p *NamedQueryParser) ParseStored(customer int, name, template string, args []string, keyTemplate string) *models.StoredParsedNamedQuery {
	q := &models.StoredParsedNamedQuery{
		ParsedNamedQuery: models.ParsedNamedQuery{Customer: customer, Name: name},
		Args:             args,
	}
	p.parseInto(&q.ParsedNamedQuery, q, template, args)
	if q.IsFaulty {
		return q
	}

	replacer := strings.NewReplacer(
		"{customer}", strconv.Itoa(customer),
		"{queryname}", name,
		"{args}", strings.Join(args, "/"),
	)
	q.StorageKey = replacer.Replace(keyTemplate)
	q.ControlFileKey = q.StorageKey + ".json"
	return q
}

func (p *NamedQueryParser) parseInto(q *models.ParsedNamedQuery, stored *models.StoredParsedNamedQuery, template string, args []string) {
	pairs, queryArgs := splitTemplate(template, args)

	for _, pair := range pairs {
		value, err := resolveValue(pair.value, queryArgs)
		if err != nil {
			p.fail(q, err)
			return
		}

		switch pair.key {
		case "space":
			n, err := strconv.Atoi(value)
			if err != nil {
				p.fail(q, fmt.Errorf("invalid space %q: %w", value, err))
				return
			}
			q.Space = &n
		case "spacename":
			v := unescapeValue(value)
			q.SpaceName = &v
		case "s1":
			v := unescapeValue(value)
			q.String1 = &v
		case "s2":
			v := unescapeValue(value)
			q.String2 = &v
		case "s3":
			v := unescapeValue(value)
			q.String3 = &v
		case "n1", "n2", "n3":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				p.fail(q, fmt.Errorf("invalid %s %q: %w", pair.key, value, err))
				return
			}
			switch pair.key {
			case "n1":
				q.Number1 = &n
			case "n2":
				q.Number2 = &n
			case "n3":
				q.Number3 = &n
			}
		case "batch", "batches":
			batches, err := parseBatches(value)
			if err != nil {
				p.fail(q, err)
				return
			}
			q.Batches = batches
		case "manifest":
			m, err := parseMapping(value)
			if err != nil {
				p.fail(q, err)
				return
			}
			q.Manifest = m
		case "sequence":
			m, err := parseMapping(value)
			if err != nil {
				p.fail(q, err)
				return
			}
			q.Sequence = m
		case "canvas":
			m, err := parseMapping(value)
			if err != nil {
				p.fail(q, err)
				return
			}
			q.Canvas = m
		case "assetorder", "assetordering":
			ordering, err := parseOrdering(value)
			if err != nil {
				p.fail(q, err)
				return
			}
			q.Ordering = ordering
		case "objectname":
			if stored != nil {
				stored.ObjectName = unescapeValue(value)
			}
		default:
			// Unknown keys are ignored so templates can carry hints for
			// other consumers without breaking older deployments
			p.log.Debug("ignoring unknown template key", "key", pair.key)
		}
	}
}

func (p *NamedQueryParser) fail(q *models.ParsedNamedQuery, err error) {
	p.log.Warn("named query parse failed",
		"customer", q.Customer, "query", q.Name, "error", err)
	q.SetError(err.Error())
}

type templatePair struct {
	key   string
	value string
}

// splitTemplate breaks a template into its pairs and appends any
// additional-arg marker values to the caller's argument list
func splitTemplate(template string, args []string) ([]templatePair, []string) {
	queryArgs := make([]string, len(args))
	copy(queryArgs, args)

	var pairs []templatePair
	for _, raw := range strings.Split(template, templatePairSeparator) {
		key, value, found := strings.Cut(raw, templateElementSep)
		if !found || key == "" || value == "" {
			continue
		}
		if key == additionalArgMarker {
			queryArgs = append(queryArgs, value)
			continue
		}
		pairs = append(pairs, templatePair{key: strings.ToLower(key), value: value})
	}
	return pairs, queryArgs
}

// resolveValue substitutes pN placeholders with the Nth (1-based)
// positional argument
func resolveValue(value string, args []string) (string, error) {
	if !strings.HasPrefix(value, parameterPrefix) {
		return value, nil
	}
	index, err := strconv.Atoi(value[len(parameterPrefix):])
	if err != nil {
		// Not a placeholder after all (e.g. a literal starting with p)
		return value, nil
	}
	if index < 1 || index > len(args) {
		return "", fmt.Errorf("not enough arguments to satisfy template element %s", value)
	}
	return args[index-1], nil
}

// unescapeValue restores slashes that callers must encode to survive
// path-segment splitting
func unescapeValue(value string) string {
	return strings.ReplaceAll(value, "%2F", "/")
}

func parseBatches(value string) ([]int64, error) {
	parts := strings.Split(value, ",")
	batches := make([]int64, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid batch %q: %w", part, err)
		}
		batches = append(batches, n)
	}
	return batches, nil
}

func parseMapping(value string) (models.QueryMapping, error) {
	switch strings.ToLower(value) {
	case "s1":
		return models.MappingString1, nil
	case "s2":
		return models.MappingString2, nil
	case "s3":
		return models.MappingString3, nil
	case "n1":
		return models.MappingNumber1, nil
	case "n2":
		return models.MappingNumber2, nil
	case "n3":
		return models.MappingNumber3, nil
	default:
		return models.MappingUnset, fmt.Errorf("unknown property mapping %q", value)
	}
}

// parseOrdering parses clauses like "n1;n2 desc;s1 asc". URL-encoded
// spaces may arrive as plus signs.
func parseOrdering(value string) ([]models.QueryOrder, error) {
	clauses := strings.Split(value, ";")
	ordering := make([]models.QueryOrder, 0, len(clauses))
	for _, clause := range clauses {
		clause = strings.TrimSpace(strings.ReplaceAll(clause, "+", " "))
		if clause == "" {
			continue
		}

		field := clause
		direction := models.OrderAscending
		if name, dir, found := strings.Cut(clause, " "); found {
			field = name
			switch strings.ToLower(strings.TrimSpace(dir)) {
			case "asc", "ascending":
				direction = models.OrderAscending
			case "desc", "descending":
				direction = models.OrderDescending
			default:
				return nil, fmt.Errorf("unknown sort direction %q", dir)
			}
		}

		mapping, err := parseMapping(field)
		if err != nil {
			return nil, err
		}
		ordering = append(ordering, models.QueryOrder{Field: mapping, Direction: direction})
	}
	return ordering, nil
}

// NamedQueryConductor resolves a named query end to end: template lookup,
// parse, catalog execution
type NamedQueryConductor struct {
	templates TemplateStore
	catalog   Catalog
	parser    *NamedQueryParser
	log       *logger.Logger
}

// NewNamedQueryConductor creates a new conductor
func NewNamedQueryConductor(templates TemplateStore, catalog Catalog, parser *NamedQueryParser, log *logger.Logger) *NamedQueryConductor {
	return &NamedQueryConductor{templates: templates, catalog: catalog, parser: parser, log: log}
}

// Resolve looks up the template for (customer, queryName), parses it with
// args and runs the resulting query. Returns (nil, nil) when no template
// exists; a faulty parse returns the parsed query with no results.
func (c *NamedQueryConductor) Resolve(ctx context.Context, customer int, queryName string, args []string) (*models.NamedQueryResult, error) {
	template, err := c.templates.GetByName(ctx, customer, queryName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up named query %q: %w", queryName, err)
	}
	if template == nil {
		return nil, nil
	}

	parsed := c.parser.Parse(customer, queryName, template.Template, args)
	return c.execute(ctx, parsed, &models.NamedQueryResult{ParsedQuery: parsed})
}

// ResolveStored is Resolve for projection routes (pdf, zip); keyTemplate
// drives where the projection payload and control file live.
func (c *NamedQueryConductor) ResolveStored(ctx context.Context, customer int, queryName string, args []string, keyTemplate string) (*models.StoredParsedNamedQuery, []models.AssetRecord, error) {
	template, err := c.templates.GetByName(ctx, customer, queryName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up named query %q: %w", queryName, err)
	}
	if template == nil {
		return nil, nil, nil
	}

	parsed := c.parser.ParseStored(customer, queryName, template.Template, args, keyTemplate)
	result, err := c.execute(ctx, &parsed.ParsedNamedQuery, &models.NamedQueryResult{ParsedQuery: &parsed.ParsedNamedQuery})
	if err != nil {
		return nil, nil, err
	}
	return parsed, result.Results, nil
}

func (c *NamedQueryConductor) execute(ctx context.Context, parsed *models.ParsedNamedQuery, result *models.NamedQueryResult) (*models.NamedQueryResult, error) {
	log := c.log.WithCustomer(parsed.Customer)
	if parsed.IsFaulty {
		log.Debug("skipping execution of faulty query",
			"query", parsed.Name, "reason", parsed.ErrorMessage)
		return result, nil
	}

	records, err := c.catalog.QueryAssets(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to execute named query %q: %w", parsed.Name, err)
	}
	result.Results = records
	return result, nil
}
