package policy

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	jsonschemav6 "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// BuiltinSource marks a document that came from the embedded default rule set
const BuiltinSource = "builtin"

const policySchemaURL = "https://governance-ledger.local/schemas/policy-document.schema.json"

//go:embed default_policies.yaml
var builtinPolicyYAML []byte

//go:embed policy_schema.json
var policySchemaJSON string

// policyIDNamespace seeds the deterministic policyId derivation.
var policyIDNamespace = uuid.MustParse("6f1c2a9e-5b7d-4c38-9a41-3e0d8b2f7c15")

// Compiled once at process start. A corrupted embedded document aborts startup.
var (
	documentSchema  = mustCompileSchema()
	builtinDocument = mustParseBuiltin()
)

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(policySchemaURL, strings.NewReader(policySchemaJSON)); err != nil {
		panic(fmt.Sprintf("policy schema load failed: %v", err))
	}
	schema, err := c.Compile(policySchemaURL)
	if err != nil {
		panic(fmt.Sprintf("policy schema compile failed: %v", err))
	}
	return schema
}

func mustParseBuiltin() *models.PolicyDocument {
	doc, err := ParseDocument(builtinPolicyYAML, BuiltinSource)
	if err != nil {
		panic(fmt.Sprintf("built-in policy document is corrupted: %v", err))
	}
	return doc
}

// Builtin returns the embedded default document. Callers must not mutate it.
func Builtin() *models.PolicyDocument {
	return builtinDocument
}

// ParseDocument decodes a YAML or JSON policy document and validates it
// against the policy schema.
func ParseDocument(data []byte, source string) (*models.PolicyDocument, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, services.ErrPolicyDocumentInvalid.Wrap(fmt.Errorf("invalid policy yaml: %w", err))
	}

	instance, err := toJSONValue(raw)
	if err != nil {
		return nil, services.ErrPolicyDocumentInvalid.Wrap(err)
	}
	if err := documentSchema.Validate(instance); err != nil {
		return nil, services.ErrPolicyDocumentInvalid.Wrap(fmt.Errorf("schema validation failed: %w", err))
	}

	var doc models.PolicyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, services.ErrPolicyDocumentInvalid.Wrap(fmt.Errorf("invalid policy document: %w", err))
	}
	doc.Source = source
	return &doc, nil
}

// ParseFile reads and validates a policy document without any fallback
func ParseFile(path string) (*models.PolicyDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParseDocument(data, path)
}

// toJSONValue converts a decoded YAML tree into the value space the schema
// validator expects by round-tripping it through encoding/json.
func toJSONValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, fmt.Errorf("policy document is not JSON-compatible: %w", err)
	}
	return jsonschemav6.UnmarshalJSON(bytes.NewReader(data))
}

func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}

// Table loads policy documents with a TTL cache and falls back to the
// built-in document when the source is missing or invalid.
type Table struct {
	cache    *DocumentCache
	readFile func(string) ([]byte, error)
	logger   *zap.Logger
}

// NewTable creates a Table whose loaded documents live for cacheTTL
func NewTable(cacheTTL time.Duration, logger *zap.Logger) *Table {
	return &Table{
		cache:    NewDocumentCache(16, cacheTTL),
		readFile: os.ReadFile,
		logger:   logger,
	}
}

// Load returns the document at path. It never fails: a missing, unparsable or
// schema-invalid file logs a warning and yields the built-in document.
func (t *Table) Load(path string) *models.PolicyDocument {
	if path == "" {
		return builtinDocument
	}
	if doc := t.cache.Get(path); doc != nil {
		return doc
	}

	doc, err := t.loadFile(path)
	if err != nil {
		t.logger.Warn("policy document unusable, falling back to built-in rules",
			zap.String("path", path),
			zap.Error(err))
		doc = builtinDocument
	}

	t.cache.Set(path, doc)
	return doc
}

func (t *Table) loadFile(path string) (*models.PolicyDocument, error) {
	data, err := t.readFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("policy file not found: %w", err)
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParseDocument(data, path)
}

// Invalidate drops the cached document for path
func (t *Table) Invalidate(path string) {
	t.cache.Invalidate(path)
}

// CacheStats returns document cache statistics
func (t *Table) CacheStats() CacheStats {
	return t.cache.Stats()
}

// FindMatchingRule resolves (actorType, capability, scope) against doc.
// A rule matches when its actor equals actorType or is the "system" wildcard.
// Exact actor matches take precedence over the wildcard; within each class
// the first rule in declaration order wins.
func FindMatchingRule(doc *models.PolicyDocument, actorType models.ActorType, capability models.Capability, scope models.Scope) *models.PolicyRule {
	if doc == nil {
		return nil
	}

	var wildcard *models.PolicyRule
	for i := range doc.Rules {
		rule := &doc.Rules[i]
		if rule.Capability != capability || rule.Scope != scope {
			continue
		}
		if rule.Actor == actorType {
			return rule
		}
		if rule.Actor == models.ActorTypeSystem && wildcard == nil {
			wildcard = rule
		}
	}
	return wildcard
}

// RequiresQuorum reports whether rule has a non-empty review quorum
func RequiresQuorum(rule *models.PolicyRule) bool {
	return rule.RequiresQuorum()
}

// IsReversible reports whether rule's action can be undone
func IsReversible(rule *models.PolicyRule) bool {
	return rule.Reversible
}

// MinApprovals returns the approval threshold for rule
func MinApprovals(rule *models.PolicyRule) int {
	return rule.RequiredApprovals()
}

// PolicyID derives the stable decision id of rule from its actor:capability:scope key
func PolicyID(rule *models.PolicyRule) string {
	return uuid.NewSHA1(policyIDNamespace, []byte(rule.Key())).String()
}
