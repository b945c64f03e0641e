// Package wire implements §6's wire formats: the envelope every worker
// sends and receives, and the payload types riding inside it. The
// envelope's own framing is selectable (json/gob/binary, see codec.go);
// the payloads are always gob-encoded into the envelope's Payload field,
// this module's stand-in for the protobuf the original system used —
// there is no protobuf library anywhere in the retrieval pack.
package wire

import (
	"bytes"
	"encoding/gob"

	"github.com/driftkv/driftkv/internal/lattice"
)

// MsgType tags which payload an Envelope carries.
type MsgType uint8

const (
	MsgUnknown MsgType = iota
	MsgJoin
	MsgDepart
	MsgSelfDepart
	MsgKeyRequest
	MsgKeyResponse
	MsgGossip
	MsgReplicationRequest
	MsgReplicationResponse
	MsgReplicationChange
	MsgCacheIPReport
	MsgCacheIPPing
	MsgSeedRequest
	MsgSeedResponse
	MsgManagementJoinCountRequest
	MsgManagementJoinCountResponse
	MsgManagementCacheListRequest
	MsgManagementCacheListResponse
)

func (t MsgType) String() string {
	switch t {
	case MsgJoin:
		return "join"
	case MsgDepart:
		return "depart"
	case MsgSelfDepart:
		return "self_depart"
	case MsgKeyRequest:
		return "key_request"
	case MsgKeyResponse:
		return "key_response"
	case MsgGossip:
		return "gossip"
	case MsgReplicationRequest:
		return "replication_request"
	case MsgReplicationResponse:
		return "replication_response"
	case MsgReplicationChange:
		return "replication_change"
	case MsgCacheIPReport:
		return "cache_ip_report"
	case MsgCacheIPPing:
		return "cache_ip_ping"
	case MsgSeedRequest:
		return "seed_request"
	case MsgSeedResponse:
		return "seed_response"
	case MsgManagementJoinCountRequest:
		return "management_join_count_request"
	case MsgManagementJoinCountResponse:
		return "management_join_count_response"
	case MsgManagementCacheListRequest:
		return "management_cache_list_request"
	case MsgManagementCacheListResponse:
		return "management_cache_list_response"
	default:
		return "unknown"
	}
}

// Envelope is the outer frame every message is wrapped in. Payload is
// opaque to the envelope codec — it is always produced by gob-encoding
// one of the structs below.
type Envelope struct {
	Type    MsgType
	Payload []byte
}

func encodePayload(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePayload(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// --- Key request/response (§6 KeyRequest/KeyResponse) -----------------

// KeyOp distinguishes GET from PUT within a KeyRequest/KeyTuple.
type KeyOp uint8

const (
	OpGet KeyOp = iota
	OpPut
)

// KeyTuple is one (key, lattice type, payload) unit of a batched request.
type KeyTuple struct {
	Key         string
	LatticeType lattice.Type
	Op          KeyOp
	Payload     []byte // gob-encoded lattice.Value, present for Op==OpPut
}

// KeyRequest is the payload for MsgKeyRequest and MsgGossip (gossip is a
// KeyRequest with Op==OpPut on every tuple and no reply expected).
type KeyRequest struct {
	RequestID    string
	ReplyAddress string
	Tuples       []KeyTuple
}

func (r KeyRequest) Marshal() ([]byte, error) { return encodePayload(r) }

func DecodeKeyRequest(data []byte) (KeyRequest, error) {
	var r KeyRequest
	err := decodePayload(data, &r)
	return r, err
}

// KeyTupleResult is one tuple's outcome in a KeyResponse.
type KeyTupleResult struct {
	Key                   string
	ErrorCode             int // 0 == success; non-zero mirrors kverrors.Code
	ErrorMsg              string
	LatticeType           lattice.Type
	Payload               []byte // gob-encoded lattice.Value, present on a successful GET
	ResponsibleAddresses  []string
}

// KeyResponse is the payload for MsgKeyResponse.
type KeyResponse struct {
	RequestID string
	Results   []KeyTupleResult
}

func (r KeyResponse) Marshal() ([]byte, error) { return encodePayload(r) }

func DecodeKeyResponse(data []byte) (KeyResponse, error) {
	var r KeyResponse
	err := decodePayload(data, &r)
	return r, err
}

// --- Membership (§6 ClusterMembership, join/depart) --------------------

// ServerInfo identifies one node's thread-0 representative for membership
// purposes: a node is addressed by (PublicIP, PrivateIP, JoinEpoch).
type ServerInfo struct {
	PublicIP  string
	PrivateIP string
	JoinEpoch uint64
}

// TierMembers lists every node currently known in one tier.
type TierMembers struct {
	Tier    string
	Servers []ServerInfo
}

// ClusterMembership is the payload of a seed response: the full
// membership table across every tier, handed to a newly joining node.
type ClusterMembership struct {
	Tiers []TierMembers
}

func (m ClusterMembership) Marshal() ([]byte, error) { return encodePayload(m) }

func DecodeClusterMembership(data []byte) (ClusterMembership, error) {
	var m ClusterMembership
	err := decodePayload(data, &m)
	return m, err
}

// JoinDepart is the payload for MsgJoin/MsgDepart/MsgSelfDepart. It
// carries the fields of §4.F's "<tier>:<public_ip>:<private_ip>:<join_epoch>"
// announcement as an encoded struct instead of the original's
// colon-delimited string.
type JoinDepart struct {
	Tier      string
	PublicIP  string
	PrivateIP string
	JoinEpoch uint64
}

func (j JoinDepart) Marshal() ([]byte, error) { return encodePayload(j) }

func DecodeJoinDepart(data []byte) (JoinDepart, error) {
	var j JoinDepart
	err := decodePayload(data, &j)
	return j, err
}

// --- Replication (§6 ReplicationRequest/Response/Change) ---------------

type TierFactor struct {
	Tier   string
	Global int
	Local  int
}

// ReplicationRequest asks the replication oracle for a key's record.
type ReplicationRequest struct {
	Key          string
	ReplyAddress string
}

func (r ReplicationRequest) Marshal() ([]byte, error) { return encodePayload(r) }

func DecodeReplicationRequest(data []byte) (ReplicationRequest, error) {
	var r ReplicationRequest
	err := decodePayload(data, &r)
	return r, err
}

// ReplicationResponse answers a ReplicationRequest with the key's
// per-tier replication factors.
type ReplicationResponse struct {
	Key    string
	Factors []TierFactor
}

func (r ReplicationResponse) Marshal() ([]byte, error) { return encodePayload(r) }

func DecodeReplicationResponse(data []byte) (ReplicationResponse, error) {
	var r ReplicationResponse
	err := decodePayload(data, &r)
	return r, err
}

// ReplicationChange pushes an explicit override for a key's replication
// factors, fanned out to every thread that might be responsible for it.
type ReplicationChange struct {
	Key     string
	Factors []TierFactor
}

func (r ReplicationChange) Marshal() ([]byte, error) { return encodePayload(r) }

func DecodeReplicationChange(data []byte) (ReplicationChange, error) {
	var r ReplicationChange
	err := decodePayload(data, &r)
	return r, err
}

// --- Cache-IP tracker (§4.H) --------------------------------------------

// CacheIPPing is sent to a newly extant cache to ask it to report the
// keys it currently caches; it carries nothing beyond where to reply.
// The "which caches are live" query is ManagementCacheListRequest.
type CacheIPPing struct {
	ReplyAddress string
}

func (p CacheIPPing) Marshal() ([]byte, error) { return encodePayload(p) }

func DecodeCacheIPPing(data []byte) (CacheIPPing, error) {
	var p CacheIPPing
	err := decodePayload(data, &p)
	return p, err
}

// CacheIPReport informs a worker that cacheIP is caching (or has
// stopped caching) the listed keys.
type CacheIPReport struct {
	CacheIP    string
	Keys       []string
	Departing  bool
}

func (r CacheIPReport) Marshal() ([]byte, error) { return encodePayload(r) }

func DecodeCacheIPReport(data []byte) (CacheIPReport, error) {
	var r CacheIPReport
	err := decodePayload(data, &r)
	return r, err
}

// --- Telemetry (§4.J ServerThreadStatistics/KeyAccessData/KeySizeData) -

// ServerThreadStatistics is the per-epoch self-report PUT into the
// MEMORY tier's metadata keyspace.
type ServerThreadStatistics struct {
	Epoch                uint64
	StorageConsumptionKB  uint64
	Occupancy             float64
	AccessCount           uint64
}

func (s ServerThreadStatistics) Marshal() ([]byte, error) { return encodePayload(s) }

func DecodeServerThreadStatistics(data []byte) (ServerThreadStatistics, error) {
	var s ServerThreadStatistics
	err := decodePayload(data, &s)
	return s, err
}

type KeyCount struct {
	Key         string
	AccessCount uint64
}

// KeyAccessData is the per-epoch key-access report, emitted by every
// thread for the keys it fielded requests for.
type KeyAccessData struct {
	Epoch uint64
	Keys  []KeyCount
}

func (k KeyAccessData) Marshal() ([]byte, error) { return encodePayload(k) }

func DecodeKeyAccessData(data []byte) (KeyAccessData, error) {
	var k KeyAccessData
	err := decodePayload(data, &k)
	return k, err
}

type KeySize struct {
	Key  string
	Size uint64
}

// KeySizeData is the per-epoch key-size report, emitted only by the
// thread holding the primary replica of each key (per §4.J).
type KeySizeData struct {
	Epoch uint64
	Sizes []KeySize
}

func (k KeySizeData) Marshal() ([]byte, error) { return encodePayload(k) }

func DecodeKeySizeData(data []byte) (KeySizeData, error) {
	var k KeySizeData
	err := decodePayload(data, &k)
	return k, err
}

// --- Seed bootstrap and management (§4.G first-join, §4.J cache refresh) -

// SeedRequest is sent to a node's seed_ip on first join: "which servers
// already exist in every tier".
type SeedRequest struct {
	Tier      string
	PublicIP  string
	PrivateIP string
}

func (s SeedRequest) Marshal() ([]byte, error) { return encodePayload(s) }

func DecodeSeedRequest(data []byte) (SeedRequest, error) {
	var s SeedRequest
	err := decodePayload(data, &s)
	return s, err
}

// SeedResponse answers a SeedRequest with the full membership table, the
// same shape a ClusterMembership carries.
type SeedResponse struct {
	Membership ClusterMembership
}

func (s SeedResponse) Marshal() ([]byte, error) { return encodePayload(s) }

func DecodeSeedResponse(data []byte) (SeedResponse, error) {
	var s SeedResponse
	err := decodePayload(data, &s)
	return s, err
}

// ManagementJoinCountRequest asks the management collaborator how many
// times this private IP has previously joined, used to derive a fresh
// join_epoch that is guaranteed higher than any prior one.
type ManagementJoinCountRequest struct {
	PrivateIP string
}

func (r ManagementJoinCountRequest) Marshal() ([]byte, error) { return encodePayload(r) }

func DecodeManagementJoinCountRequest(data []byte) (ManagementJoinCountRequest, error) {
	var r ManagementJoinCountRequest
	err := decodePayload(data, &r)
	return r, err
}

type ManagementJoinCountResponse struct {
	JoinEpoch uint64
}

func (r ManagementJoinCountResponse) Marshal() ([]byte, error) { return encodePayload(r) }

func DecodeManagementJoinCountResponse(data []byte) (ManagementJoinCountResponse, error) {
	var r ManagementJoinCountResponse
	err := decodePayload(data, &r)
	return r, err
}

// ManagementCacheListRequest asks the management collaborator which
// cache/function nodes are currently live, the periodic re-query of
// §4.J point 4.
type ManagementCacheListRequest struct {
	ReplyAddress string
}

func (r ManagementCacheListRequest) Marshal() ([]byte, error) { return encodePayload(r) }

func DecodeManagementCacheListRequest(data []byte) (ManagementCacheListRequest, error) {
	var r ManagementCacheListRequest
	err := decodePayload(data, &r)
	return r, err
}

type ManagementCacheListResponse struct {
	CacheIPs []string
}

func (r ManagementCacheListResponse) Marshal() ([]byte, error) { return encodePayload(r) }

func DecodeManagementCacheListResponse(data []byte) (ManagementCacheListResponse, error) {
	var r ManagementCacheListResponse
	err := decodePayload(data, &r)
	return r, err
}
