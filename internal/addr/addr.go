// Package addr implements §4.A of the specification: deriving stable
// endpoint addresses for every purpose a worker thread binds or connects
// to, from nothing but the thread's identity.
package addr

import "fmt"

// Tier identifies a storage tier. Only MEMORY and DISK are implemented;
// the routing/monitoring tiers are external collaborators referenced
// only by address, never run by this module.
type Tier string

const (
	TierMemory Tier = "MEMORY"
	TierDisk   Tier = "DISK"
)

func (t Tier) Valid() bool {
	return t == TierMemory || t == TierDisk
}

// Purpose enumerates the nine inbound channels a worker thread
// multiplexes over, plus the outbound-only seed/management purposes.
type Purpose string

const (
	PurposeJoin                 Purpose = "join"
	PurposeDepart                Purpose = "depart"
	PurposeSelfDepart            Purpose = "self_depart"
	PurposeRequest               Purpose = "request"
	PurposeGossip                Purpose = "gossip"
	PurposeReplicationResponse   Purpose = "replication_response"
	PurposeReplicationChange     Purpose = "replication_change"
	PurposeCacheIPResponse       Purpose = "cache_ip_response"
	PurposeManagementResponse    Purpose = "management_node_response"
	PurposeSeed                  Purpose = "seed"
	PurposeManagementJoinCount   Purpose = "management_join_count"
	PurposeManagementPush        Purpose = "management_push"
	PurposeMonitoringNotify      Purpose = "monitoring_notify"
	PurposeCacheReport           Purpose = "cache_report"
)

// inboundPurposes is the set a server thread's event loop actually
// binds a listener for (the nine original pollitems, minus thread-0-only
// seed/management which are outbound connect targets, not binds).
var inboundPurposes = []Purpose{
	PurposeJoin,
	PurposeDepart,
	PurposeSelfDepart,
	PurposeRequest,
	PurposeGossip,
	PurposeReplicationResponse,
	PurposeReplicationChange,
	PurposeCacheIPResponse,
	PurposeManagementResponse,
}

// InboundPurposes returns the purposes a worker thread binds listeners for.
func InboundPurposes() []Purpose {
	out := make([]Purpose, len(inboundPurposes))
	copy(out, inboundPurposes)
	return out
}

// purposeOffset gives every purpose a stable slot in the per-thread port
// block so that bind/connect addresses are deterministic from identity
// alone, with no coordination.
var purposeOffset = map[Purpose]int{
	PurposeJoin:                0,
	PurposeDepart:               1,
	PurposeSelfDepart:           2,
	PurposeRequest:              3,
	PurposeGossip:               4,
	PurposeReplicationResponse:  5,
	PurposeReplicationChange:    6,
	PurposeCacheIPResponse:      7,
	PurposeManagementResponse:   8,
}

const purposeSlots = 16 // headroom beyond the 9 inbound purposes

// ServerThread identifies a single worker thread. Equality for ring
// membership purposes is on (PrivateIP, JoinEpoch, Tid) — PublicIP is
// carried for client-facing addresses but two threads with the same
// private identity and epoch are the same thread, per §4.B.
type ServerThread struct {
	Tier      Tier
	PublicIP  string
	PrivateIP string
	JoinEpoch uint64
	Tid       uint32
}

// Equal compares the ring-membership identity of two threads, ignoring
// PublicIP, matching the teacher's compare-by-essential-fields approach
// used throughout lib/store for identity checks.
func (s ServerThread) Equal(o ServerThread) bool {
	return s.PrivateIP == o.PrivateIP && s.JoinEpoch == o.JoinEpoch && s.Tid == o.Tid
}

func (s ServerThread) String() string {
	return fmt.Sprintf("%s/%s:%d@%d", s.Tier, s.PrivateIP, s.Tid, s.JoinEpoch)
}

// basePort is where the purpose/tid port block begins. Each thread gets
// a contiguous block of purposeSlots ports starting at
// basePort + tid*purposeSlots.
const basePort = 7200

func portFor(tid uint32, p Purpose) int {
	offset, ok := purposeOffset[p]
	if !ok {
		// Outbound-only purposes (seed, management, monitoring) are
		// addressed on fixed well-known ports below basePort, since
		// they belong to external collaborators with a single thread,
		// not a per-tid block.
		switch p {
		case PurposeSeed:
			return basePort - 4
		case PurposeManagementJoinCount:
			return basePort - 3
		case PurposeManagementPush:
			return basePort - 6
		case PurposeMonitoringNotify:
			return basePort - 2
		case PurposeCacheReport:
			return basePort - 1
		default:
			return basePort - 5
		}
	}
	return basePort + int(tid)*purposeSlots + offset
}

// BindAddressTCP returns the TCP address a thread listens on for a given
// purpose, reachable by any node on the network.
func BindAddressTCP(privateIP string, tid uint32, p Purpose) string {
	return fmt.Sprintf("tcp://%s:%d", privateIP, portFor(tid, p))
}

// BindAddressUnix returns the Unix-domain socket path a thread additionally
// listens on for same-node traffic, mirroring how the original system used
// ipc:// endpoints for same-host links. Same-node callers prefer this path
// over dialing back through TCP.
func BindAddressUnix(privateIP string, tid uint32, p Purpose) string {
	sanitized := sanitize(privateIP)
	return fmt.Sprintf("unix:///tmp/driftkv/%s/%d/%s.sock", sanitized, tid, p)
}

func sanitize(ip string) string {
	out := make([]byte, 0, len(ip))
	for _, c := range ip {
		if c == '.' || c == ':' {
			out = append(out, '_')
		} else {
			out = append(out, byte(c))
		}
	}
	return string(out)
}

// ConnectAddress picks the cheapest reachable address for a destination
// thread: the Unix socket when the caller and callee share a private IP
// (same node), otherwise TCP.
func ConnectAddress(callerPrivateIP string, dest ServerThread, p Purpose) string {
	if callerPrivateIP == dest.PrivateIP {
		return BindAddressUnix(dest.PrivateIP, dest.Tid, p)
	}
	return BindAddressTCP(dest.PrivateIP, dest.Tid, p)
}

// SeedBindAddr returns the bare host:port a node's thread 0 serves the
// seed HTTP responder on.
func SeedBindAddr(privateIP string) string {
	return fmt.Sprintf("%s:%d", privateIP, portFor(0, PurposeSeed))
}

// SeedConnectAddr returns the full "http://host:port/seed" URL a
// newcomer posts its join request to.
func SeedConnectAddr(seedIP string) string {
	return fmt.Sprintf("http://%s:%d/seed", seedIP, portFor(0, PurposeSeed))
}

// ManagementConnectAddr returns the full "http://host:port/<path>" URL
// for the management collaborator's blocking request/reply endpoint
// (used only at bootstrap, for the join-epoch/restart-count query).
func ManagementConnectAddr(mgmtIP, path string) string {
	return fmt.Sprintf("http://%s:%d%s", mgmtIP, portFor(0, PurposeManagementJoinCount), path)
}

// ManagementPushAddr returns the fire-and-forget PUSH destination for
// the management collaborator's other interactions (the periodic
// cache-list re-query), whose reply arrives asynchronously on the
// querying thread's own PurposeManagementResponse queue rather than as
// an HTTP response.
func ManagementPushAddr(mgmtIP string) string {
	return BindAddressTCP(mgmtIP, 0, PurposeManagementPush)
}

// RoutingJoinAnnouncement formats the synthetic membership announcement a
// routing node sends to monitoring nodes, which (per original_source's
// routing.cpp) carries "NULL" where a server announcement would carry a
// private IP and join epoch. driftkv does not run a routing tier, but
// keeps the helper so any future routing-node implementation can reuse
// this module's wire-format knowledge.
func RoutingJoinAnnouncement(tier Tier, publicIP string) string {
	return fmt.Sprintf("join:%s:%s:NULL", tier, publicIP)
}

// MembershipWireFormat formats the colon-delimited join/depart
// announcement sent to routing and monitoring collaborators:
// "<kind>:<tier>:<public_ip>:<private_ip>:<join_epoch>", where kind is
// "join" or "depart". Peer threads receive a wire.JoinDepart instead.
func MembershipWireFormat(kind string, st ServerThread) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", kind, st.Tier, st.PublicIP, st.PrivateIP, st.JoinEpoch)
}
