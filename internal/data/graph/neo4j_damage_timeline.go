package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/damagegraph-backend/internal/domain/temporal"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
	"github.com/yungbote/damagegraph-backend/internal/platform/neo4jdb"
)

// RelType is the closed set of relationship types this package will interpolate into Cypher.
type RelType string

const (
	RelHasEpoch   RelType = "HAS_EPOCH"
	RelNextEpoch  RelType = "NEXT_EPOCH"
	RelRelatedTo  RelType = "RELATED_TO"
	RelCausedBy   RelType = "CAUSED_BY"
	RelAdjacentTo RelType = "ADJACENT_TO"
)

var damageRelTypes = map[RelType]bool{
	RelRelatedTo:  true,
	RelCausedBy:   true,
	RelAdjacentTo: true,
}

// ParseDamageRelType accepts the damage-to-damage relationship types, case-insensitively.
func ParseDamageRelType(s string) (RelType, error) {
	rt := RelType(strings.ToUpper(strings.TrimSpace(s)))
	if !damageRelTypes[rt] {
		return "", fmt.Errorf("unsupported relationship type %q", s)
	}
	return rt, nil
}

type InvalidPolicy string

const (
	// PolicyAbort rejects the whole document when any entry is invalid.
	PolicyAbort InvalidPolicy = "abort"
	// PolicySkip reports invalid entries and ingests the rest.
	PolicySkip InvalidPolicy = "skip"
)

func ParseInvalidPolicy(s string) (InvalidPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PolicyAbort):
		return PolicyAbort, nil
	case string(PolicySkip):
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown invalid policy %q", s)
	}
}

type IngestOptions struct {
	Policy InvalidPolicy
	// ReplaceEpochs detach-deletes a damage's existing epochs before creating the new ones.
	ReplaceEpochs bool
}

// StoreUnavailableError wraps any failure of the graph store. It is never retried here.
type StoreUnavailableError struct {
	Op    string
	Cause error
}

func (e *StoreUnavailableError) Error() string {
	if e == nil {
		return "graph store unavailable"
	}
	return fmt.Sprintf("graph store unavailable (%s): %v", e.Op, e.Cause)
}

func (e *StoreUnavailableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

var ErrDamageNotFound = errors.New("damage not found")

type IngestReport struct {
	DamageNodesMerged int                                `json:"damage_nodes_created"`
	EpochNodesCreated int                                `json:"epoch_nodes_created"`
	HasEpochLinks     int                                `json:"has_epoch_links"`
	NextEpochLinks    int                                `json:"next_epoch_links"`
	EpochsCleared     int                                `json:"epochs_cleared"`
	DamageIDs         []string                           `json:"damage_ids"`
	Invalid           []*temporal.InvalidDamageStructure `json:"invalid"`
}

func (r *IngestReport) NodesCreated() int {
	return r.DamageNodesMerged + r.EpochNodesCreated
}

func (r *IngestReport) RelationshipsCreated() int {
	return r.HasEpochLinks + r.NextEpochLinks
}

const (
	cypherDamageConstraint = `CREATE CONSTRAINT damage_id_unique IF NOT EXISTS FOR (d:Damage) REQUIRE d.Damage_ID IS UNIQUE`
	cypherEpochIndex       = `CREATE INDEX epoch_id_idx IF NOT EXISTS FOR (e:Epoch) ON (e.epoch_id)`

	cypherMergeDamage = `
MERGE (d:Damage {Damage_ID: $Damage_ID})
SET d.DamageType = $DamageType,
    d.Image_Filename = $Image_Filename,
    d.IFC_Filepath = $IFC_Filepath,
    d.IFC_Data = $IFC_Data,
    d.IFC_Element = $IFC_Element,
    d.IFC_GUID = $IFC_GUID
RETURN elementId(d) AS id`

	cypherCreateEpoch = `
CREATE (e:Epoch {
  epoch_id: $epoch_id,
  Epoch: $Epoch,
  Storage_Path: $Storage_Path,
  ReferenceCoOrdinateSystem: $ReferenceCoOrdinateSystem,
  Length_m: $Length_m,
  Width_mm: $Width_mm,
  Position_3D_Axis: $Position_3D_Axis,
  Max_Width_3D_Position: $Max_Width_3D_Position
})
RETURN elementId(e) AS id`

	cypherLinkHasEpoch = `
MATCH (d:Damage {Damage_ID: $Damage_ID})
MATCH (e:Epoch) WHERE elementId(e) = $epoch
MERGE (d)-[:HAS_EPOCH]->(e)
RETURN count(*) AS linked`

	cypherLinkNextEpoch = `
MATCH (a:Epoch) WHERE elementId(a) = $from
MATCH (b:Epoch) WHERE elementId(b) = $to
MERGE (a)-[:NEXT_EPOCH]->(b)
RETURN count(*) AS linked`

	cypherClearEpochs = `
MATCH (d:Damage {Damage_ID: $Damage_ID})-[:HAS_EPOCH]->(e:Epoch)
WITH collect(e) AS epochs
FOREACH (x IN epochs | DETACH DELETE x)
RETURN size(epochs) AS removed`

	cypherDeleteDamage = `
MATCH (d:Damage {Damage_ID: $Damage_ID})
OPTIONAL MATCH (d)-[:HAS_EPOCH]->(e:Epoch)
WITH d, collect(e) AS epochs
FOREACH (x IN epochs | DETACH DELETE x)
DETACH DELETE d
RETURN size(epochs) AS removed`

	cypherDamageTimeline = `
MATCH (d:Damage {Damage_ID: $Damage_ID})
OPTIONAL MATCH (d)-[:HAS_EPOCH]->(e:Epoch)
OPTIONAL MATCH (p:Epoch)-[:NEXT_EPOCH]->(e)
RETURN properties(d) AS damage, properties(e) AS epoch, elementId(e) AS id, elementId(p) AS prev`

	cypherRelateDamages = `
MATCH (a:Damage {Damage_ID: $source})
MATCH (b:Damage {Damage_ID: $target})
MERGE (a)-[r:%s]->(b)
RETURN type(r) AS type`
)

// EnsureDamageSchema creates the Damage_ID uniqueness constraint and the epoch_id index.
// Failures are logged and ignored; restricted users may not manage schema.
func EnsureDamageSchema(ctx context.Context, runner neo4jdb.Runner, log *logger.Logger) {
	if runner == nil {
		return
	}
	for _, stmt := range []string{cypherDamageConstraint, cypherEpochIndex} {
		if _, err := runner.Run(ctx, stmt, nil); err != nil {
			log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	}
}

// IngestDamageTimeline writes every valid entry of doc as one Damage node and its Epoch chain.
// The whole document is validated before the first statement runs.
func IngestDamageTimeline(ctx context.Context, runner neo4jdb.Runner, log *logger.Logger, doc *temporal.Document, opts IngestOptions) (*IngestReport, error) {
	if runner == nil {
		return nil, &StoreUnavailableError{Op: "ingest", Cause: errors.New("no graph session")}
	}
	if doc == nil {
		return nil, fmt.Errorf("ingest damage timeline: missing document")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Policy == "" {
		opts.Policy = PolicyAbort
	}

	records, invalid := doc.Validate()
	report := &IngestReport{
		DamageIDs: []string{},
		Invalid:   []*temporal.InvalidDamageStructure{},
	}
	report.Invalid = append(report.Invalid, invalid...)
	if len(invalid) > 0 && opts.Policy == PolicyAbort {
		return report, invalid[0]
	}

	for _, rec := range records {
		if err := ingestDamage(ctx, runner, rec, opts, report); err != nil {
			log.Error("damage ingest failed", "damage_id", rec.DamageID, "error", err)
			return report, err
		}
		report.DamageIDs = append(report.DamageIDs, rec.DamageID)
	}

	log.Info("damage timeline ingested",
		"damages", report.DamageNodesMerged,
		"epochs", report.EpochNodesCreated,
		"relationships", report.RelationshipsCreated(),
		"invalid", len(report.Invalid),
	)
	return report, nil
}

func ingestDamage(ctx context.Context, runner neo4jdb.Runner, rec temporal.DamageRecord, opts IngestOptions, report *IngestReport) error {
	if _, err := single(ctx, runner, "merge damage", cypherMergeDamage, rec.DamageProperties()); err != nil {
		return err
	}
	report.DamageNodesMerged++

	if opts.ReplaceEpochs {
		removed, err := clearEpochs(ctx, runner, rec.DamageID)
		if err != nil {
			return err
		}
		report.EpochsCleared += removed
	}

	prev := ""
	for _, ep := range rec.Epochs {
		row, err := single(ctx, runner, "create epoch", cypherCreateEpoch, ep.Properties())
		if err != nil {
			return err
		}
		id, _ := row["id"].(string)
		if id == "" {
			return &StoreUnavailableError{Op: "create epoch", Cause: errors.New("no element id returned")}
		}
		report.EpochNodesCreated++

		if err := link(ctx, runner, "link HAS_EPOCH", cypherLinkHasEpoch, map[string]any{
			"Damage_ID": rec.DamageID,
			"epoch":     id,
		}); err != nil {
			return err
		}
		report.HasEpochLinks++

		if prev != "" {
			if err := link(ctx, runner, "link NEXT_EPOCH", cypherLinkNextEpoch, map[string]any{
				"from": prev,
				"to":   id,
			}); err != nil {
				return err
			}
			report.NextEpochLinks++
		}
		prev = id
	}
	return nil
}

// ClearDamageEpochs detach-deletes every epoch of the damage and returns how many were removed.
func ClearDamageEpochs(ctx context.Context, runner neo4jdb.Runner, damageID string) (int, error) {
	if strings.TrimSpace(damageID) == "" {
		return 0, fmt.Errorf("clear epochs: missing damage id")
	}
	return clearEpochs(ctx, runner, damageID)
}

func clearEpochs(ctx context.Context, runner neo4jdb.Runner, damageID string) (int, error) {
	rows, err := run(ctx, runner, "clear epochs", cypherClearEpochs, map[string]any{"Damage_ID": damageID})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return asInt(rows[0]["removed"]), nil
}

// DeleteDamage detach-deletes the damage and its epochs. It returns the number of epochs removed.
func DeleteDamage(ctx context.Context, runner neo4jdb.Runner, damageID string) (int, error) {
	if strings.TrimSpace(damageID) == "" {
		return 0, fmt.Errorf("delete damage: missing damage id")
	}
	rows, err := run(ctx, runner, "delete damage", cypherDeleteDamage, map[string]any{"Damage_ID": damageID})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, ErrDamageNotFound
	}
	return asInt(rows[0]["removed"]), nil
}

// RelateDamages merges a typed edge between two existing damages.
func RelateDamages(ctx context.Context, runner neo4jdb.Runner, source, target string, rel RelType) error {
	if !damageRelTypes[rel] {
		return fmt.Errorf("relate damages: unsupported relationship type %q", rel)
	}
	if source == "" || target == "" {
		return fmt.Errorf("relate damages: source and target are required")
	}
	rows, err := run(ctx, runner, "relate damages", fmt.Sprintf(cypherRelateDamages, rel), map[string]any{
		"source": source,
		"target": target,
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrDamageNotFound
	}
	return nil
}

type DamageTimeline struct {
	Damage map[string]any   `json:"damage"`
	Epochs []map[string]any `json:"epochs"`
}

// GetDamageTimeline returns the damage and its epochs ordered along the NEXT_EPOCH chain.
// Chains left by repeated ingests without ReplaceEpochs follow one another in store order.
func GetDamageTimeline(ctx context.Context, runner neo4jdb.Runner, damageID string) (*DamageTimeline, error) {
	rows, err := run(ctx, runner, "get timeline", cypherDamageTimeline, map[string]any{"Damage_ID": damageID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrDamageNotFound
	}

	out := &DamageTimeline{Epochs: []map[string]any{}}
	if d, ok := rows[0]["damage"].(map[string]any); ok {
		out.Damage = d
	}

	props := map[string]map[string]any{}
	next := map[string]string{}
	hasPrev := map[string]bool{}
	var order []string
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		if _, seen := props[id]; !seen {
			order = append(order, id)
			p, _ := row["epoch"].(map[string]any)
			props[id] = p
		}
		if prev, _ := row["prev"].(string); prev != "" {
			next[prev] = id
			hasPrev[id] = true
		}
	}

	visited := map[string]bool{}
	walk := func(start string) {
		for id := start; id != "" && !visited[id]; id = next[id] {
			if _, ok := props[id]; !ok {
				return
			}
			visited[id] = true
			out.Epochs = append(out.Epochs, props[id])
		}
	}
	for _, id := range order {
		if !hasPrev[id] {
			walk(id)
		}
	}
	// anything left sits on a cycle or hangs off a foreign epoch
	for _, id := range order {
		walk(id)
	}
	return out, nil
}

func run(ctx context.Context, runner neo4jdb.Runner, op, cypher string, params map[string]any) ([]map[string]any, error) {
	if runner == nil {
		return nil, &StoreUnavailableError{Op: op, Cause: errors.New("no graph session")}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := runner.Run(ctx, cypher, params)
	if err != nil {
		return nil, &StoreUnavailableError{Op: op, Cause: err}
	}
	return rows, nil
}

// single runs a statement that must yield at least one record.
func single(ctx context.Context, runner neo4jdb.Runner, op, cypher string, params map[string]any) (map[string]any, error) {
	rows, err := run(ctx, runner, op, cypher, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &StoreUnavailableError{Op: op, Cause: errors.New("statement matched nothing")}
	}
	return rows[0], nil
}

// link runs a MATCH ... MERGE statement returning count(*) AS linked; zero means an endpoint vanished.
func link(ctx context.Context, runner neo4jdb.Runner, op, cypher string, params map[string]any) error {
	row, err := single(ctx, runner, op, cypher, params)
	if err != nil {
		return err
	}
	if asInt(row["linked"]) == 0 {
		return &StoreUnavailableError{Op: op, Cause: errors.New("endpoint not found")}
	}
	return nil
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
