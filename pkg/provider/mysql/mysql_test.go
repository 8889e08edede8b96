package mysql

import (
    "context"
    "errors"
    "testing"

    "github.com/amirimatin/go-failover/pkg/provider"
    "github.com/amirimatin/go-failover/pkg/topology"
)

func testOptions() Options {
    return Options{Clusters: map[string][]MemberConfig{
        "orders": {
            {ID: "db1", Region: "eu-1", DSN: "app:pw@tcp(db1:3306)/"},
            {ID: "db2", Region: "eu-2", DSN: "app:pw@tcp(db2:3306)/"},
        },
    }}
}

func TestRoleFromFlags(t *testing.T) {
    cases := []struct {
        readOnly, superReadOnly int
        want                    topology.Role
    }{
        {0, 0, topology.RoleWriter},
        {1, 0, topology.RoleReader},
        {0, 1, topology.RoleReader},
        {1, 1, topology.RoleReader},
    }
    for _, c := range cases {
        if got := roleFromFlags(c.readOnly, c.superReadOnly); got != c.want {
            t.Fatalf("roleFromFlags(%d, %d) = %v, want %v", c.readOnly, c.superReadOnly, got, c.want)
        }
    }
}

func TestNewValidation(t *testing.T) {
    cases := []struct {
        name string
        opts Options
    }{
        {"no clusters", Options{}},
        {"empty cluster", Options{Clusters: map[string][]MemberConfig{"orders": {}}}},
        {"member without dsn", Options{Clusters: map[string][]MemberConfig{
            "orders": {{ID: "db1"}},
        }}},
        {"member without id", Options{Clusters: map[string][]MemberConfig{
            "orders": {{DSN: "app:pw@tcp(db1:3306)/"}},
        }}},
    }
    for _, c := range cases {
        t.Run(c.name, func(t *testing.T) {
            if _, err := New(c.opts); err == nil {
                t.Fatalf("expected error")
            }
        })
    }
}

func TestQueryBeforeFirstProbe(t *testing.T) {
    p, err := New(testOptions())
    if err != nil { t.Fatalf("new: %v", err) }

    snap, err := p.Query(context.Background(), "orders")
    if err != nil { t.Fatalf("query: %v", err) }
    if len(snap.Members) != 2 { t.Fatalf("members: %+v", snap.Members) }
    for _, m := range snap.Members {
        if m.Role != topology.RoleUnknown {
            t.Fatalf("member %s role = %v before first probe", m.ID, m.Role)
        }
    }
    if snap.Members[0].ID != "db1" || snap.Members[1].Region != "eu-2" {
        t.Fatalf("configured order lost: %+v", snap.Members)
    }
}

func TestQueryUnknownCluster(t *testing.T) {
    p, err := New(testOptions())
    if err != nil { t.Fatalf("new: %v", err) }
    if _, err := p.Query(context.Background(), "nope"); !errors.Is(err, provider.ErrUnknownCluster) {
        t.Fatalf("err = %v, want ErrUnknownCluster", err)
    }
}

func TestTriggerFailoverValidation(t *testing.T) {
    p, err := New(testOptions())
    if err != nil { t.Fatalf("new: %v", err) }

    if _, err := p.TriggerFailover(context.Background(), "nope", "db1"); !errors.Is(err, provider.ErrUnknownCluster) {
        t.Fatalf("err = %v, want ErrUnknownCluster", err)
    }
    if _, err := p.TriggerFailover(context.Background(), "orders", ""); err == nil {
        t.Fatalf("expected error for empty target")
    }
    if _, err := p.TriggerFailover(context.Background(), "orders", "db9"); !errors.Is(err, provider.ErrUnknownMember) {
        t.Fatalf("err = %v, want ErrUnknownMember", err)
    }
}

func TestPollUnknownOperation(t *testing.T) {
    p, err := New(testOptions())
    if err != nil { t.Fatalf("new: %v", err) }
    if _, err := p.PollOperation(context.Background(), provider.OperationHandle{ID: "gone"}); !errors.Is(err, provider.ErrUnknownOperation) {
        t.Fatalf("err = %v, want ErrUnknownOperation", err)
    }
}
