// Package mysql implements the provider contracts directly against the
// database members, for self-managed MySQL replication topologies that have
// no external control plane. Topology comes from static configuration;
// member health and roles come from probing each member's own server, with
// the writer/reader role derived from read_only flags.
package mysql

import (
    "context"
    "database/sql"
    "fmt"
    "sync"
    "time"

    _ "github.com/go-sql-driver/mysql"
    "github.com/google/uuid"

    "github.com/amirimatin/go-failover/pkg/provider"
    "github.com/amirimatin/go-failover/pkg/topology"
)

// MemberConfig identifies one database member and how to reach it.
type MemberConfig struct {
    ID     string
    Region string
    // DSN in go-sql-driver format, e.g. "user:pass@tcp(host:3306)/".
    DSN string
}

// Options configures the direct-attach provider.
type Options struct {
    // Clusters maps cluster id to its members in promotion-priority order.
    Clusters map[string][]MemberConfig
}

// Provider implements provider.StatusProvider and provider.ControlPlane by
// talking to the members themselves.
type Provider struct {
    opts Options

    mu    sync.Mutex
    dbs   map[string]*sql.DB
    roles map[string]topology.Role
    ops   map[string]provider.OperationState
}

// New constructs a Provider. Connections are opened lazily on first probe.
func New(opts Options) (*Provider, error) {
    if len(opts.Clusters) == 0 {
        return nil, fmt.Errorf("mysql: no clusters configured")
    }
    for id, members := range opts.Clusters {
        if len(members) == 0 {
            return nil, fmt.Errorf("mysql: cluster %s has no members", id)
        }
        for _, m := range members {
            if m.ID == "" || m.DSN == "" {
                return nil, fmt.Errorf("mysql: cluster %s: member needs id and dsn", id)
            }
        }
    }
    return &Provider{
        opts:  opts,
        dbs:   make(map[string]*sql.DB),
        roles: make(map[string]topology.Role),
        ops:   make(map[string]provider.OperationState),
    }, nil
}

var (
    _ provider.StatusProvider = (*Provider)(nil)
    _ provider.ControlPlane   = (*Provider)(nil)
)

// Query returns the configured membership. Roles reflect the last probe of
// each member; before the first probe they are unknown and settle within one
// observation cycle. The configuration is local, so Query never reports a
// provider outage.
func (p *Provider) Query(ctx context.Context, clusterID string) (provider.Snapshot, error) {
    members, ok := p.opts.Clusters[clusterID]
    if !ok {
        return provider.Snapshot{}, provider.ErrUnknownCluster
    }
    snap := provider.Snapshot{ClusterID: clusterID}
    p.mu.Lock()
    defer p.mu.Unlock()
    for _, m := range members {
        role := p.roles[key(clusterID, m.ID)]
        if role == "" { role = topology.RoleUnknown }
        snap.Members = append(snap.Members, provider.MemberInfo{ID: m.ID, Region: m.Region, Role: role})
    }
    return snap, nil
}

// Probe pings the member and derives its role from the read_only flags: a
// server accepting writes is the writer, everything else is a reader.
func (p *Provider) Probe(ctx context.Context, clusterID, memberID string) (provider.MemberStatus, error) {
    db, err := p.db(clusterID, memberID)
    if err != nil { return provider.MemberStatus{}, err }

    start := time.Now()
    if err := db.PingContext(ctx); err != nil {
        return provider.MemberStatus{}, fmt.Errorf("mysql: ping %s: %w", memberID, err)
    }
    var readOnly, superReadOnly int
    row := db.QueryRowContext(ctx, "SELECT @@global.read_only, @@global.super_read_only")
    if err := row.Scan(&readOnly, &superReadOnly); err != nil {
        return provider.MemberStatus{}, fmt.Errorf("mysql: role query %s: %w", memberID, err)
    }
    role := roleFromFlags(readOnly, superReadOnly)
    p.mu.Lock()
    p.roles[key(clusterID, memberID)] = role
    p.mu.Unlock()
    return provider.MemberStatus{
        Status:  topology.StatusAvailable,
        Role:    role,
        Latency: time.Since(start),
    }, nil
}

// TriggerFailover promotes the target by flipping read_only flags: the
// current writer (when reachable) is demoted first, then the target is
// opened for writes. The statements are fast, so the operation completes
// synchronously; the returned handle polls as done.
func (p *Provider) TriggerFailover(ctx context.Context, clusterID, targetMemberID string) (provider.OperationHandle, error) {
    members, ok := p.opts.Clusters[clusterID]
    if !ok {
        return provider.OperationHandle{}, provider.ErrUnknownCluster
    }
    if targetMemberID == "" {
        return provider.OperationHandle{}, fmt.Errorf("mysql: target member required")
    }
    found := false
    for _, m := range members {
        if m.ID == targetMemberID { found = true; break }
    }
    if !found {
        return provider.OperationHandle{}, provider.ErrUnknownMember
    }

    // Demote the old writer first so two writers never overlap. A demotion
    // that fails because the writer is down is exactly the failover case,
    // so it is logged into the operation error only if promotion also fails.
    for _, m := range members {
        if m.ID == targetMemberID { continue }
        p.mu.Lock()
        role := p.roles[key(clusterID, m.ID)]
        p.mu.Unlock()
        if role != topology.RoleWriter { continue }
        if db, err := p.db(clusterID, m.ID); err == nil {
            dctx, cancel := context.WithTimeout(ctx, 3*time.Second)
            _, _ = db.ExecContext(dctx, "SET GLOBAL super_read_only = 1")
            _, _ = db.ExecContext(dctx, "SET GLOBAL read_only = 1")
            cancel()
        }
    }

    db, err := p.db(clusterID, targetMemberID)
    if err != nil { return provider.OperationHandle{}, err }
    if _, err := db.ExecContext(ctx, "SET GLOBAL super_read_only = 0"); err != nil {
        return provider.OperationHandle{}, fmt.Errorf("mysql: promote %s: %w", targetMemberID, err)
    }
    if _, err := db.ExecContext(ctx, "SET GLOBAL read_only = 0"); err != nil {
        return provider.OperationHandle{}, fmt.Errorf("mysql: promote %s: %w", targetMemberID, err)
    }

    opID := uuid.NewString()
    p.mu.Lock()
    p.ops[opID] = provider.OperationDone
    p.roles[key(clusterID, targetMemberID)] = topology.RoleWriter
    for _, m := range members {
        if m.ID != targetMemberID && p.roles[key(clusterID, m.ID)] == topology.RoleWriter {
            p.roles[key(clusterID, m.ID)] = topology.RoleReader
        }
    }
    p.mu.Unlock()
    return provider.OperationHandle{ID: opID, ClusterID: clusterID}, nil
}

// PollOperation reports the state of a promotion issued by this provider.
func (p *Provider) PollOperation(ctx context.Context, handle provider.OperationHandle) (provider.OperationState, error) {
    p.mu.Lock()
    defer p.mu.Unlock()
    st, ok := p.ops[handle.ID]
    if !ok {
        return provider.OperationPending, provider.ErrUnknownOperation
    }
    return st, nil
}

// Close releases all member connections.
func (p *Provider) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    var firstErr error
    for k, db := range p.dbs {
        if err := db.Close(); err != nil && firstErr == nil { firstErr = err }
        delete(p.dbs, k)
    }
    return firstErr
}

// db returns the cached connection pool for a member, opening it lazily.
func (p *Provider) db(clusterID, memberID string) (*sql.DB, error) {
    k := key(clusterID, memberID)
    p.mu.Lock()
    defer p.mu.Unlock()
    if db, ok := p.dbs[k]; ok { return db, nil }

    members, ok := p.opts.Clusters[clusterID]
    if !ok { return nil, provider.ErrUnknownCluster }
    var dsn string
    for _, m := range members {
        if m.ID == memberID { dsn = m.DSN; break }
    }
    if dsn == "" { return nil, provider.ErrUnknownMember }

    db, err := sql.Open("mysql", dsn)
    if err != nil { return nil, fmt.Errorf("mysql: open %s: %w", memberID, err) }
    // Probes are small and periodic; keep the pool tiny.
    db.SetMaxOpenConns(2)
    db.SetMaxIdleConns(1)
    db.SetConnMaxLifetime(5 * time.Minute)
    p.dbs[k] = db
    return db, nil
}

// roleFromFlags maps the read_only flags to a role: only a server accepting
// writes on both counts is the writer.
func roleFromFlags(readOnly, superReadOnly int) topology.Role {
    if readOnly == 0 && superReadOnly == 0 {
        return topology.RoleWriter
    }
    return topology.RoleReader
}

func key(clusterID, memberID string) string {
    return clusterID + "/" + memberID
}
