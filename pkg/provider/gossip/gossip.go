// Package gossip implements a StatusProvider over a HashiCorp memberlist
// ring. Small agents running next to each database member join the ring and
// gossip the member's identity and role in their node metadata; the
// controller joins as an observer and reads topology straight out of the
// ring. Memberlist's own failure detector provides liveness: a member that
// disappears from the ring fails its probes until it returns.
//
// Gossip carries observations only, so this package has no ControlPlane.
// Pair it with the httpjson or mysql control plane in the bootstrap config.
package gossip

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "net"
    "strconv"
    "sync"
    "time"

    "github.com/hashicorp/memberlist"

    "github.com/amirimatin/go-failover/pkg/provider"
    "github.com/amirimatin/go-failover/pkg/topology"
)

// Meta is the metadata document agents gossip in their node meta. The ring
// node name is the agent's unique name; Member identifies the database
// member the agent speaks for.
type Meta struct {
    Cluster string `json:"cluster"`
    Member  string `json:"member"`
    Region  string `json:"region,omitempty"`
    Role    string `json:"role,omitempty"`
}

// AgentMeta encodes the metadata an agent should gossip for its member.
// Agents embedding memberlist directly can serve this from their delegate.
func AgentMeta(clusterID, memberID, region string, role topology.Role) ([]byte, error) {
    return json.Marshal(Meta{Cluster: clusterID, Member: memberID, Region: region, Role: string(role)})
}

// Options configures the observer side of the ring.
type Options struct {
    // NodeID is this observer's unique ring name.
    NodeID string

    // Bind is the gossip bind address in host:port form.
    Bind string

    // Advertise overrides the advertised address. Optional.
    Advertise string

    // Seeds are initial ring members to join through.
    Seeds []string

    Logger *log.Logger

    // Tuning parameters (optional). Zero means memberlist defaults.
    ProbeInterval time.Duration
    ProbeTimeout  time.Duration
    SuspicionMult int
}

// Provider implements provider.StatusProvider over the ring.
type Provider struct {
    mu   sync.RWMutex
    opts Options
    ml   *memberlist.Memberlist
}

// New constructs a Provider. Call Start to join the ring.
func New(opts Options) (*Provider, error) {
    if opts.NodeID == "" {
        return nil, fmt.Errorf("gossip: empty NodeID")
    }
    if opts.Bind == "" {
        return nil, fmt.Errorf("gossip: empty Bind address")
    }
    if opts.Logger == nil {
        opts.Logger = log.Default()
    }
    return &Provider{opts: opts}, nil
}

var _ provider.StatusProvider = (*Provider)(nil)

// Start creates the memberlist instance and joins the configured seeds.
func (p *Provider) Start(ctx context.Context) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ml != nil {
        return nil
    }

    cfg := memberlist.DefaultLANConfig()
    cfg.Name = p.opts.NodeID
    cfg.Logger = p.opts.Logger
    host, portStr, err := net.SplitHostPort(p.opts.Bind)
    if err != nil {
        return fmt.Errorf("gossip: invalid bind address %q: %w", p.opts.Bind, err)
    }
    port, err := strconv.Atoi(portStr)
    if err != nil {
        return fmt.Errorf("gossip: invalid bind port %q: %w", portStr, err)
    }
    cfg.BindAddr = host
    cfg.BindPort = port
    if p.opts.Advertise != "" {
        ahost, aportStr, err := net.SplitHostPort(p.opts.Advertise)
        if err != nil {
            return fmt.Errorf("gossip: invalid advertise address %q: %w", p.opts.Advertise, err)
        }
        aport, err := strconv.Atoi(aportStr)
        if err != nil {
            return fmt.Errorf("gossip: invalid advertise port %q: %w", aportStr, err)
        }
        cfg.AdvertiseAddr = ahost
        cfg.AdvertisePort = aport
    }
    if p.opts.ProbeInterval > 0 { cfg.ProbeInterval = p.opts.ProbeInterval }
    if p.opts.ProbeTimeout > 0 { cfg.ProbeTimeout = p.opts.ProbeTimeout }
    if p.opts.SuspicionMult > 0 { cfg.SuspicionMult = p.opts.SuspicionMult }

    // The observer gossips no member metadata of its own.
    cfg.Delegate = &observerDelegate{}

    ml, err := memberlist.Create(cfg)
    if err != nil { return err }
    p.ml = ml

    if len(p.opts.Seeds) > 0 {
        if _, err := ml.Join(p.opts.Seeds); err != nil {
            // Seeds may be down at startup; the ring heals on its own once
            // they return, so joining is best-effort.
            p.opts.Logger.Printf("[WARN] gossip: initial join failed: %v", err)
        }
    }
    return nil
}

// Stop leaves the ring and shuts the instance down.
func (p *Provider) Stop() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ml == nil {
        return nil
    }
    _ = p.ml.Leave(time.Second)
    err := p.ml.Shutdown()
    p.ml = nil
    return err
}

// Query lists every ring member gossiping for the cluster. An empty result
// is a valid (not yet converged) view, not an error.
func (p *Provider) Query(ctx context.Context, clusterID string) (provider.Snapshot, error) {
    nodes, err := p.nodes()
    if err != nil {
        return provider.Snapshot{}, provider.Outage("query", err)
    }
    snap := provider.Snapshot{ClusterID: clusterID}
    for _, n := range nodes {
        meta, ok := decodeMeta(n)
        if !ok || meta.Cluster != clusterID { continue }
        role := topology.Role(meta.Role)
        if role == "" { role = topology.RoleUnknown }
        snap.Members = append(snap.Members, provider.MemberInfo{ID: meta.Member, Region: meta.Region, Role: role})
    }
    return snap, nil
}

// Probe reports a member as available while its agent is alive in the ring.
// Memberlist removes dead nodes from the member view, so an absent agent is
// a failed probe and feeds the failure counters.
func (p *Provider) Probe(ctx context.Context, clusterID, memberID string) (provider.MemberStatus, error) {
    nodes, err := p.nodes()
    if err != nil {
        return provider.MemberStatus{}, provider.Outage("probe", err)
    }
    for _, n := range nodes {
        meta, ok := decodeMeta(n)
        if !ok || meta.Cluster != clusterID || meta.Member != memberID { continue }
        role := topology.Role(meta.Role)
        if role == "" { role = topology.RoleUnknown }
        return provider.MemberStatus{Status: topology.StatusAvailable, Role: role}, nil
    }
    return provider.MemberStatus{}, fmt.Errorf("gossip: member %s/%s not present in ring", clusterID, memberID)
}

func (p *Provider) nodes() ([]*memberlist.Node, error) {
    p.mu.RLock()
    defer p.mu.RUnlock()
    if p.ml == nil {
        return nil, fmt.Errorf("gossip: not started")
    }
    return p.ml.Members(), nil
}

func decodeMeta(n *memberlist.Node) (Meta, bool) {
    var meta Meta
    if len(n.Meta) == 0 { return meta, false }
    if err := json.Unmarshal(n.Meta, &meta); err != nil { return meta, false }
    return meta, meta.Cluster != "" && meta.Member != ""
}

// observerDelegate satisfies memberlist.Delegate with no-op broadcasts and
// empty node meta.
type observerDelegate struct{}

func (*observerDelegate) NodeMeta(limit int) []byte                  { return nil }
func (*observerDelegate) NotifyMsg([]byte)                           {}
func (*observerDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (*observerDelegate) LocalState(join bool) []byte                { return nil }
func (*observerDelegate) MergeRemoteState(buf []byte, join bool)     {}
