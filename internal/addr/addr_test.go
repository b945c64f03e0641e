package addr

import "testing"

func TestBindAddressTCPDeterministicFromIdentity(t *testing.T) {
	a1 := BindAddressTCP("10.0.0.1", 3, PurposeGossip)
	a2 := BindAddressTCP("10.0.0.1", 3, PurposeGossip)
	if a1 != a2 {
		t.Fatalf("expected deterministic address, got %q and %q", a1, a2)
	}
}

func TestBindAddressTCPDistinctPerPurpose(t *testing.T) {
	a := BindAddressTCP("10.0.0.1", 0, PurposeJoin)
	b := BindAddressTCP("10.0.0.1", 0, PurposeDepart)
	if a == b {
		t.Fatalf("expected distinct addresses for distinct purposes, both were %q", a)
	}
}

func TestBindAddressTCPDistinctPerThread(t *testing.T) {
	a := BindAddressTCP("10.0.0.1", 0, PurposeRequest)
	b := BindAddressTCP("10.0.0.1", 1, PurposeRequest)
	if a == b {
		t.Fatalf("expected distinct addresses for distinct thread ids, both were %q", a)
	}
}

func TestConnectAddressPrefersUnixOnSameNode(t *testing.T) {
	dest := ServerThread{PrivateIP: "10.0.0.1", Tid: 2}
	got := ConnectAddress("10.0.0.1", dest, PurposeRequest)
	if got[:7] != "unix://" {
		t.Fatalf("expected unix socket address for same-node call, got %q", got)
	}
}

func TestConnectAddressUsesTCPAcrossNodes(t *testing.T) {
	dest := ServerThread{PrivateIP: "10.0.0.2", Tid: 2}
	got := ConnectAddress("10.0.0.1", dest, PurposeRequest)
	if got[:6] != "tcp://" {
		t.Fatalf("expected tcp address for cross-node call, got %q", got)
	}
}

func TestSeedAddressesAgreeOnPort(t *testing.T) {
	bind := SeedBindAddr("10.0.0.1")
	connect := SeedConnectAddr("10.0.0.1")
	if bind != "10.0.0.1:7196" {
		t.Fatalf("unexpected seed bind address %q", bind)
	}
	if connect != "http://10.0.0.1:7196/seed" {
		t.Fatalf("unexpected seed connect address %q", connect)
	}
}

func TestManagementAddressesUseDistinctPorts(t *testing.T) {
	joinCount := ManagementConnectAddr("10.0.0.5", "/join-count")
	push := ManagementPushAddr("10.0.0.5")
	if joinCount == push {
		t.Fatalf("expected management join-count and push addresses to differ, both were %q", joinCount)
	}
}

func TestServerThreadEqualIgnoresPublicIP(t *testing.T) {
	a := ServerThread{PrivateIP: "10.0.0.1", PublicIP: "1.2.3.4", JoinEpoch: 1, Tid: 0}
	b := ServerThread{PrivateIP: "10.0.0.1", PublicIP: "5.6.7.8", JoinEpoch: 1, Tid: 0}
	if !a.Equal(b) {
		t.Fatalf("expected threads with same private identity to be equal regardless of public IP")
	}
}

func TestServerThreadEqualDiffersOnJoinEpoch(t *testing.T) {
	a := ServerThread{PrivateIP: "10.0.0.1", JoinEpoch: 1, Tid: 0}
	b := ServerThread{PrivateIP: "10.0.0.1", JoinEpoch: 2, Tid: 0}
	if a.Equal(b) {
		t.Fatalf("expected threads with different join epochs to be unequal (rejoin after restart)")
	}
}

func TestInboundPurposesHasNinePurposes(t *testing.T) {
	if got := len(InboundPurposes()); got != 9 {
		t.Fatalf("expected 9 inbound purposes, got %d", got)
	}
}

func TestTierValid(t *testing.T) {
	if !TierMemory.Valid() || !TierDisk.Valid() {
		t.Fatal("expected MEMORY and DISK to be valid tiers")
	}
	if Tier("BOGUS").Valid() {
		t.Fatal("expected an unknown tier to be invalid")
	}
}
