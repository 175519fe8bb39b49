package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/ndikhoa/ladesk-api/internal/adapters/onpremise"
	"github.com/ndikhoa/ladesk-api/internal/classifier"
)

// Lookup is the agent-directory side of the On-Premise client.
type Lookup interface {
	AgentByContactID(ctx context.Context, contactID string) (*onpremise.Agent, error)
	AgentByName(ctx context.Context, name string) (*onpremise.Agent, error)
}

// Directory resolves On-Premise agent identifiers to the Cloud
// useridentifier a relayed reply is attributed to. The explicit
// mapping lives in a JSON file (On-Premise agent id → Cloud user id)
// maintained through the admin API; directory lookups against the
// On-Premise API are cached.
type Directory struct {
	mu                sync.RWMutex
	path              string
	mapping           map[string]string
	lookup            Lookup
	cache             *gocache.Cache
	defaultIdentifier string
}

func NewDirectory(path string, lookup Lookup, defaultIdentifier string) (*Directory, error) {
	if defaultIdentifier == "" {
		return nil, fmt.Errorf("default Cloud user identifier cannot be empty")
	}

	d := &Directory{
		path:              path,
		mapping:           make(map[string]string),
		lookup:            lookup,
		cache:             gocache.New(10*time.Minute, 30*time.Minute),
		defaultIdentifier: defaultIdentifier,
	}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Directory) load() error {
	if d.path == "" {
		return nil
	}
	data, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		log.Info().Str("path", d.path).Msg("No agent mapping file yet, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read agent mapping file: %w", err)
	}

	mapping := make(map[string]string)
	if err := json.Unmarshal(data, &mapping); err != nil {
		return fmt.Errorf("failed to parse agent mapping file %s: %w", d.path, err)
	}

	d.mu.Lock()
	d.mapping = mapping
	d.mu.Unlock()
	log.Info().Int("mappings", len(mapping)).Str("path", d.path).Msg("Loaded agent mappings")
	return nil
}

func (d *Directory) save() error {
	if d.path == "" {
		return nil
	}
	d.mu.RLock()
	data, err := json.MarshalIndent(d.mapping, "", "  ")
	d.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.WriteFile(d.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save agent mapping file: %w", err)
	}
	return nil
}

// CloudIdentifier resolves the useridentifier for a reply through a
// layered fallback: explicit mapping of the payload's agent id, then
// a directory lookup by contact id re-checked against the mapping,
// then a lookup by display name, then the system default. The result
// is always usable; failures only narrow the chain.
func (d *Directory) CloudIdentifier(ctx context.Context, agentID, agentName string) string {
	if !classifier.IsPlaceholder(agentID) {
		if cloudID := d.mapped(agentID); cloudID != "" {
			log.Info().Str("agentID", agentID).Str("cloudUserID", cloudID).Msg("Mapped agent id to Cloud useridentifier")
			return cloudID
		}
		if agentID != d.defaultIdentifier {
			if cloudID := d.lookupByContactID(ctx, agentID); cloudID != "" {
				return cloudID
			}
		}
	}

	if !classifier.IsPlaceholder(agentName) {
		if cloudID := d.lookupByName(ctx, agentName); cloudID != "" {
			return cloudID
		}
	}

	log.Info().Str("cloudUserID", d.defaultIdentifier).Msg("Using default Cloud useridentifier")
	return d.defaultIdentifier
}

func (d *Directory) mapped(agentID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mapping[agentID]
}

func (d *Directory) lookupByContactID(ctx context.Context, contactID string) string {
	if d.lookup == nil {
		return ""
	}
	key := "contactid:" + contactID
	if cached, ok := d.cache.Get(key); ok {
		return cached.(string)
	}

	agent, err := d.lookup.AgentByContactID(ctx, contactID)
	if err != nil {
		log.Warn().Err(err).Str("contactID", contactID).Msg("Agent lookup by contact id failed")
		return ""
	}
	if agent == nil {
		return ""
	}

	cloudID := d.mapped(agent.Identifier())
	if cloudID == "" {
		log.Warn().Str("agentID", agent.Identifier()).Msg("Agent found in directory but not in Cloud mapping")
		return ""
	}
	d.cache.Set(key, cloudID, gocache.DefaultExpiration)
	log.Info().Str("contactID", contactID).Str("cloudUserID", cloudID).Msg("Resolved Cloud useridentifier via directory lookup")
	return cloudID
}

func (d *Directory) lookupByName(ctx context.Context, name string) string {
	if d.lookup == nil {
		return ""
	}
	key := "name:" + name
	if cached, ok := d.cache.Get(key); ok {
		return cached.(string)
	}

	agent, err := d.lookup.AgentByName(ctx, name)
	if err != nil {
		log.Warn().Err(err).Str("name", name).Msg("Agent lookup by name failed")
		return ""
	}
	if agent == nil {
		return ""
	}

	cloudID := d.mapped(agent.Identifier())
	if cloudID == "" {
		return ""
	}
	d.cache.Set(key, cloudID, gocache.DefaultExpiration)
	log.Info().Str("name", name).Str("cloudUserID", cloudID).Msg("Resolved Cloud useridentifier via name search")
	return cloudID
}

// Add registers or replaces a mapping and persists the file.
func (d *Directory) Add(agentID, cloudUserID string) error {
	if agentID == "" || cloudUserID == "" {
		return fmt.Errorf("agent id and Cloud user id are both required")
	}
	d.mu.Lock()
	d.mapping[agentID] = cloudUserID
	d.mu.Unlock()
	d.cache.Flush()
	return d.save()
}

// Remove deletes a mapping and persists the file. Reports whether the
// mapping existed.
func (d *Directory) Remove(agentID string) (bool, error) {
	d.mu.Lock()
	_, ok := d.mapping[agentID]
	delete(d.mapping, agentID)
	d.mu.Unlock()
	if !ok {
		return false, nil
	}
	d.cache.Flush()
	return true, d.save()
}

// List returns a copy of the current mappings.
func (d *Directory) List() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.mapping))
	for k, v := range d.mapping {
		out[k] = v
	}
	return out
}
