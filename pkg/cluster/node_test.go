package cluster

import "testing"

func TestNodeRoleString(t *testing.T) {
	cases := map[NodeRole]string{
		RolePrimary: "primary",
		RoleStandby: "standby",
		RoleWitness: "witness",
		RoleBDR:     "bdr",
		RoleUnknown: "unknown",
	}
	for role, want := range cases {
		if got := role.String(); got != want {
			t.Errorf("role %d: got %q, want %q", role, got, want)
		}
	}
}

func TestHasUpstream(t *testing.T) {
	withUpstream := NodeInfo{UpstreamNodeID: func() *int { n := 1; return &n }()}
	if !withUpstream.HasUpstream() {
		t.Error("expected HasUpstream true when UpstreamNodeID is set")
	}

	noUpstream := NodeInfo{}
	if noUpstream.HasUpstream() {
		t.Error("expected HasUpstream false when UpstreamNodeID is nil")
	}
}
