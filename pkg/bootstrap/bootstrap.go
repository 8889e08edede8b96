// Package bootstrap assembles a runnable failover controller from high-level
// configuration: it picks the status provider and control plane, wires the
// observability sinks and the management API, and hands back a Runtime for
// lifecycle control. Applications embed the controller by filling Config (or
// loading it from TOML) and calling Build/Run.
package bootstrap

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "log"
    "time"

    "github.com/BurntSushi/toml"

    "github.com/amirimatin/go-failover/pkg/controller"
    "github.com/amirimatin/go-failover/pkg/discovery"
    dDNS "github.com/amirimatin/go-failover/pkg/discovery/dns"
    dStatic "github.com/amirimatin/go-failover/pkg/discovery/static"
    "github.com/amirimatin/go-failover/pkg/mgmt"
    mgmtgrpc "github.com/amirimatin/go-failover/pkg/mgmt/grpcjson"
    mgmthttp "github.com/amirimatin/go-failover/pkg/mgmt/httpjson"
    "github.com/amirimatin/go-failover/pkg/provider"
    provgossip "github.com/amirimatin/go-failover/pkg/provider/gossip"
    provhttp "github.com/amirimatin/go-failover/pkg/provider/httpjson"
    provmysql "github.com/amirimatin/go-failover/pkg/provider/mysql"
    tlsx "github.com/amirimatin/go-failover/pkg/security/tlsconfig"
    "github.com/amirimatin/go-failover/pkg/sink"
)

// Duration wraps time.Duration for TOML decoding ("30s", "5m").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML values.
func (d *Duration) UnmarshalText(b []byte) error {
    v, err := time.ParseDuration(string(b))
    if err != nil { return err }
    *d = Duration(v)
    return nil
}

func (d Duration) std() time.Duration { return time.Duration(d) }

// MySQLMember configures one directly-probed database member.
type MySQLMember struct {
    ID     string `toml:"id"`
    Region string `toml:"region"`
    DSN    string `toml:"dsn"`
}

// MySQLCluster configures one cluster for the direct-attach mysql provider.
// Member order is promotion priority.
type MySQLCluster struct {
    ID      string        `toml:"id"`
    Members []MySQLMember `toml:"members"`
}

// Config defines high-level inputs to assemble a controller with sensible
// defaults.
type Config struct {
    // ClustersCSV lists the cluster ids to monitor (comma-separated). For
    // the mysql provider it may be left empty and is derived from the
    // configured clusters.
    ClustersCSV string `toml:"clusters"`

    // Provider selects the status provider: "http" (default), "mysql" or
    // "gossip".
    Provider string `toml:"provider"`

    // ControlPlane selects the control plane: "http" or "mysql". Defaults
    // to the provider when it can issue failovers; gossip cannot, so a
    // gossip provider requires an explicit http or mysql control plane.
    ControlPlane string `toml:"control_plane"`

    // HTTP provider / control plane
    ProviderURL     string   `toml:"provider_url"`
    ProviderToken   string   `toml:"provider_token"`
    ProviderTimeout Duration `toml:"provider_timeout"`

    // MySQL provider / control plane
    MySQL []MySQLCluster `toml:"mysql_cluster"`

    // Gossip provider
    GossipNodeID  string `toml:"gossip_node_id"`
    GossipBind    string `toml:"gossip_bind"`
    GossipAdv     string `toml:"gossip_advertise"`
    DiscoveryKind string `toml:"discovery"` // "static" (default) or "dns"
    SeedsCSV      string `toml:"seeds"`
    DNSNamesCSV   string `toml:"dns_names"`
    DNSPort       int    `toml:"dns_port"`

    // Management API (status/trigger/pause/resume/metrics)
    MgmtAddr  string `toml:"mgmt_addr"`  // e.g. ":7970"; empty disables it
    MgmtProto string `toml:"mgmt_proto"` // "http" (default) or "grpc"

    // TLS (optional) for the management API and HTTP provider calls
    TLSEnable     bool   `toml:"tls_enable"`
    TLSCA         string `toml:"tls_ca"`
    TLSCert       string `toml:"tls_cert"`
    TLSKey        string `toml:"tls_key"`
    TLSServerName string `toml:"tls_server_name"`
    TLSSkipVerify bool   `toml:"tls_skip_verify"`

    // Detection and execution tunables; zero means the package defaults.
    PollInterval     Duration `toml:"poll_interval"`
    FailureThreshold int      `toml:"failure_threshold"`
    GracePeriod      Duration `toml:"grace_period"`
    CooldownPeriod   Duration `toml:"cooldown_period"`
    ProbeTimeout     Duration `toml:"probe_timeout"`
    FailoverTimeout  Duration `toml:"failover_timeout"`
    DrainGrace       Duration `toml:"drain_grace"`

    // Sinks
    VerboseSink bool   `toml:"verbose_sink"` // log successful probes too
    WebhookURL  string `toml:"webhook_url"`  // empty disables the webhook sink

    // Logger (optional). If nil, log.Default() is used.
    Logger *log.Logger `toml:"-"`
}

// LoadConfig reads a TOML configuration file.
func LoadConfig(path string) (Config, error) {
    var cfg Config
    if _, err := toml.DecodeFile(path, &cfg); err != nil {
        return Config{}, fmt.Errorf("bootstrap: load %s: %w", path, err)
    }
    return cfg, nil
}

// Runtime holds the assembled controller and its management server.
type Runtime struct {
    Controller *controller.Controller
    Mgmt       mgmt.Server

    gossip *provgossip.Provider
    mysql  *provmysql.Provider
}

// Build assembles a Runtime from Config without starting anything.
func Build(cfg Config) (*Runtime, error) {
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    rt := &Runtime{}

    var cliTLS, srvTLS *tls.Config
    topts := tlsx.Options{
        Enable: cfg.TLSEnable, CAFile: cfg.TLSCA, CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey,
        InsecureSkipVerify: cfg.TLSSkipVerify, ServerName: cfg.TLSServerName,
    }
    if cfg.TLSEnable {
        var err error
        if cliTLS, err = topts.Client(); err != nil { return nil, err }
        if srvTLS, err = topts.Server(); err != nil { return nil, err }
    }

    prov, ctrlPlane, clusters, err := buildProvider(cfg, rt, topts)
    if err != nil { return nil, err }

    s, err := buildSinks(cfg, cliTLS)
    if err != nil { return nil, err }

    ctrl, err := controller.New(controller.Options{
        Clusters:         clusters,
        Provider:         prov,
        ControlPlane:     ctrlPlane,
        Sink:             s,
        Logger:           cfg.Logger,
        PollInterval:     cfg.PollInterval.std(),
        FailureThreshold: cfg.FailureThreshold,
        GracePeriod:      cfg.GracePeriod.std(),
        CooldownPeriod:   cfg.CooldownPeriod.std(),
        ProbeTimeout:     cfg.ProbeTimeout.std(),
        FailoverTimeout:  cfg.FailoverTimeout.std(),
        DrainGrace:       cfg.DrainGrace.std(),
    })
    if err != nil { return nil, err }
    rt.Controller = ctrl

    if cfg.MgmtAddr != "" {
        switch cfg.MgmtProto {
        case "grpc":
            srv := mgmtgrpc.NewServer(cfg.MgmtAddr)
            if srvTLS != nil { srv.UseTLS(srvTLS) }
            rt.Mgmt = srv
        default:
            srv := mgmthttp.NewServer(cfg.MgmtAddr, cfg.Logger)
            if srvTLS != nil { srv.UseTLS(srvTLS) }
            rt.Mgmt = srv
        }
    }
    return rt, nil
}

func buildProvider(cfg Config, rt *Runtime, topts tlsx.Options) (provider.StatusProvider, provider.ControlPlane, []string, error) {
    clusters := dStatic.Parse(cfg.ClustersCSV)

    var prov provider.StatusProvider
    var ctrlPlane provider.ControlPlane

    newHTTP := func() (*provhttp.Provider, error) {
        return provhttp.New(provhttp.Options{
            BaseURL:   cfg.ProviderURL,
            Timeout:   cfg.ProviderTimeout.std(),
            TLS:       topts,
            AuthToken: cfg.ProviderToken,
        })
    }
    newMySQL := func() (*provmysql.Provider, error) {
        if rt.mysql != nil { return rt.mysql, nil }
        mc := make(map[string][]provmysql.MemberConfig, len(cfg.MySQL))
        for _, c := range cfg.MySQL {
            for _, m := range c.Members {
                mc[c.ID] = append(mc[c.ID], provmysql.MemberConfig{ID: m.ID, Region: m.Region, DSN: m.DSN})
            }
        }
        p, err := provmysql.New(provmysql.Options{Clusters: mc})
        if err == nil { rt.mysql = p }
        return p, err
    }

    switch cfg.Provider {
    case "mysql":
        p, err := newMySQL()
        if err != nil { return nil, nil, nil, err }
        prov = p
        if len(clusters) == 0 {
            for _, c := range cfg.MySQL { clusters = append(clusters, c.ID) }
        }
    case "gossip":
        seeds := dStatic.Parse(cfg.SeedsCSV)
        var disc discovery.Discovery = dStatic.New(seeds...)
        if cfg.DiscoveryKind == "dns" {
            disc = dDNS.New(dDNS.Options{Names: dStatic.Parse(cfg.DNSNamesCSV), Port: cfg.DNSPort})
        }
        p, err := provgossip.New(provgossip.Options{
            NodeID:    cfg.GossipNodeID,
            Bind:      cfg.GossipBind,
            Advertise: cfg.GossipAdv,
            Seeds:     disc.Seeds(),
            Logger:    cfg.Logger,
        })
        if err != nil { return nil, nil, nil, err }
        prov, rt.gossip = p, p
    default:
        p, err := newHTTP()
        if err != nil { return nil, nil, nil, err }
        prov = p
        ctrlPlane = p
    }

    // Control plane: explicit kind wins; gossip observes only and must be
    // paired with one.
    switch cfg.ControlPlane {
    case "mysql":
        p, err := newMySQL()
        if err != nil { return nil, nil, nil, err }
        ctrlPlane = p
    case "http":
        p, err := newHTTP()
        if err != nil { return nil, nil, nil, err }
        ctrlPlane = p
    case "":
        if cfg.Provider == "mysql" { ctrlPlane = rt.mysql }
    default:
        return nil, nil, nil, fmt.Errorf("bootstrap: unknown control plane %q", cfg.ControlPlane)
    }
    if ctrlPlane == nil {
        return nil, nil, nil, fmt.Errorf("bootstrap: provider %q needs an explicit control plane", cfg.Provider)
    }
    if len(clusters) == 0 {
        return nil, nil, nil, fmt.Errorf("bootstrap: no clusters configured")
    }
    return prov, ctrlPlane, clusters, nil
}

func buildSinks(cfg Config, cliTLS *tls.Config) (sink.Sink, error) {
    sinks := sink.Multi{
        &sink.LogSink{Logger: cfg.Logger, Verbose: cfg.VerboseSink},
        sink.NewProm(),
    }
    if cfg.WebhookURL != "" {
        wh, err := sink.NewWebhook(context.Background(), sink.WebhookOptions{
            URL: cfg.WebhookURL, TLS: cliTLS, Logger: cfg.Logger,
        })
        if err != nil { return nil, err }
        sinks = append(sinks, wh)
    }
    return sinks, nil
}

// Run builds and starts the runtime: the gossip ring (when used), the
// controller loops and the management server. The caller owns shutdown via
// Stop.
func Run(ctx context.Context, cfg Config) (*Runtime, error) {
    rt, err := Build(cfg)
    if err != nil { return nil, err }
    if rt.gossip != nil {
        if err := rt.gossip.Start(ctx); err != nil { return nil, err }
    }
    if err := rt.Controller.Start(ctx); err != nil {
        _ = rt.stopProviders()
        return nil, err
    }
    if rt.Mgmt != nil {
        if err := rt.Mgmt.Start(ctx, rt.statusJSON, rt.handleTrigger, rt.handlePause, rt.handleResume); err != nil {
            _ = rt.Controller.Stop(context.Background())
            _ = rt.stopProviders()
            return nil, err
        }
    }
    return rt, nil
}

// Stop shuts the runtime down in reverse start order.
func (rt *Runtime) Stop(ctx context.Context) error {
    var firstErr error
    if rt.Mgmt != nil {
        if err := rt.Mgmt.Stop(ctx); err != nil && firstErr == nil { firstErr = err }
    }
    if rt.Controller != nil {
        if err := rt.Controller.Stop(ctx); err != nil && firstErr == nil { firstErr = err }
    }
    if err := rt.stopProviders(); err != nil && firstErr == nil { firstErr = err }
    return firstErr
}

func (rt *Runtime) stopProviders() error {
    var firstErr error
    if rt.gossip != nil {
        if err := rt.gossip.Stop(); err != nil { firstErr = err }
    }
    if rt.mysql != nil {
        if err := rt.mysql.Close(); err != nil && firstErr == nil { firstErr = err }
    }
    return firstErr
}

func (rt *Runtime) statusJSON(ctx context.Context) ([]byte, error) {
    st, err := rt.Controller.Status(ctx)
    if err != nil { return nil, err }
    return json.Marshal(st)
}

func (rt *Runtime) handleTrigger(ctx context.Context, req mgmt.TriggerRequest) (mgmt.TriggerResponse, error) {
    id, err := rt.Controller.Trigger(ctx, req.ClusterID, req.TargetMemberID, req.Reason)
    if err != nil {
        return mgmt.TriggerResponse{Accepted: false, Error: err.Error()}, nil
    }
    return mgmt.TriggerResponse{Accepted: true, EventID: id}, nil
}

func (rt *Runtime) handlePause(ctx context.Context, req mgmt.PauseRequest) (mgmt.PauseResponse, error) {
    if err := rt.Controller.Pause(ctx, req.ClusterID, req.Reason); err != nil {
        return mgmt.PauseResponse{Accepted: false, Error: err.Error()}, nil
    }
    return mgmt.PauseResponse{Accepted: true}, nil
}

func (rt *Runtime) handleResume(ctx context.Context, req mgmt.ResumeRequest) (mgmt.ResumeResponse, error) {
    if err := rt.Controller.Resume(ctx, req.ClusterID); err != nil {
        return mgmt.ResumeResponse{Accepted: false, Error: err.Error()}, nil
    }
    return mgmt.ResumeResponse{Accepted: true}, nil
}
