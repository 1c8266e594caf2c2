package engine

import (
	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/logger"
)

// AuthExporter performs auth.exportAuthorization/auth.importAuthorization
// against a live connection. It is an external collaborator: the actual
// RPC round-trip belongs to whatever sits above the wire codec, not to
// the coordinator (§4.G Migration).
type AuthExporter interface {
	ExportAuthorization(dcID int32) ([]byte, error)
	ImportAuthorization(dcID int32, userID int64, bytes []byte) error
}

// SetAuthExporter installs the collaborator that performs the actual
// auth.exportAuthorization/auth.importAuthorization round trip, so a 303
// rpc_result (§4.G Response Dispatch) can trigger migration on its own
// instead of requiring the caller to invoke MoveToDatacenter by hand —
// the same stored-collaborator shape as SetHandshaker in handshake.go.
func (c *Coordinator) SetAuthExporter(e AuthExporter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authExporter = e
}

// MoveToDatacenter implements §4.G Migration step 1-2: record the moving
// target, clear pending requests on the current dc, and — if a user is
// set — export authorization from the current dc before importing on the
// target.
func (c *Coordinator) MoveToDatacenter(target int32, exporter AuthExporter, userID int64) {
	c.mu.Lock()
	c.movingToDC = target
	currentID := c.currentDC
	c.mu.Unlock()

	logger.MigrateInfow("datacenter migration started", "from", currentID, "to", target)

	c.clearPendingRequestsOn(currentID)

	if !c.userSet {
		c.completeMigration(target)
		return
	}

	authBytes, err := exporter.ExportAuthorization(target)
	if err != nil {
		logger.MigrateInfow("export authorization failed, will retry", "to", target, "err", err)
		return // step 2 "on failure, retry from step 1" — left to the caller's retry loop
	}

	c.authorizeOnMovingDatacenter(target, exporter, userID, authBytes)
}

// authorizeOnMovingDatacenter implements §4.G Migration step 3-4.
func (c *Coordinator) authorizeOnMovingDatacenter(target int32, exporter AuthExporter, userID int64, authBytes []byte) {
	dc := c.Datacenter(target)
	if dc != nil && !dc.HasAuthKey(connection.Generic, false) {
		dc.Salts().Clear()
	}

	if err := exporter.ImportAuthorization(target, userID, authBytes); err != nil {
		logger.MigrateInfow("import authorization failed", "to", target, "err", err)
		return
	}

	c.completeMigration(target)
}

func (c *Coordinator) completeMigration(target int32) {
	c.mu.Lock()
	c.currentDC = target
	c.movingToDC = 0
	c.mu.Unlock()

	logger.MigrateInfow("datacenter migration completed", "now_current", target)
	c.ProcessRequestQueue()
}

// clearPendingRequestsOn drops every queued/running request whose
// *effective* datacenter is dcID, as required before a migration begins
// (§4.G Migration step 1). A request's placeholder dc 0 always means
// "current", so it resolves through c.resolveDC before comparing —
// mirroring ConnectionsManager::clearRequestsForDatacenter, which
// resolves via getDatacenterWithId (0 -> currentDatacenterId) rather than
// comparing the raw field
// (_examples/original_source/TMessagesProj/jni/tgnet/ConnectionsManager.cpp:4880-4887,5514-5520).
// Without this resolution step, a bad-msg notification from a
// non-current datacenter would spuriously sweep every placeholder-dc
// request anywhere in the instance.
func (c *Coordinator) clearPendingRequestsOn(dcID int32) {
	for _, r := range append(c.Registry.Queued(), c.Registry.Running()...) {
		dc := c.resolveDC(r.DatacenterID)
		if dc != nil && dc.ID == dcID {
			r.Cancel()
			c.Registry.Remove(r.Token)
		}
	}
}

// authorizeOnOtherDatacenter performs the §4.G Phase 5 two-step export
// (from current) / import (onto other) authorization sequence for a
// datacenter that is not current and not mid-migration, through the
// AuthExporter wired via SetAuthExporter. It does nothing when no
// AuthExporter is wired.
func (c *Coordinator) authorizeOnOtherDatacenter(target int32) {
	dc := c.Datacenter(target)
	if dc == nil || dc.AuthorizedForUser() {
		return
	}
	c.mu.Lock()
	exporter, userID := c.authExporter, c.currentUserID
	c.mu.Unlock()
	if exporter == nil {
		return
	}
	authBytes, err := exporter.ExportAuthorization(target)
	if err == nil {
		err = exporter.ImportAuthorization(target, userID, authBytes)
	}
	if err != nil {
		logger.MigrateInfow("authorization on other datacenter failed", "dc", target, "err", err)
		return
	}
	dc.SetAuthorizedForUser(true)
}

// MigrateOnNetworkCode handles an rpc_result carrying a 303
// NETWORK_MIGRATE_/PHONE_MIGRATE_/USER_MIGRATE_ error: parse the trailing
// datacenter number and trigger migration, suppressing the error locally
// (§4.G Response Dispatch rpc_result handling).
func (c *Coordinator) MigrateOnNetworkCode(targetDC int32, exporter AuthExporter, userID int64) {
	c.MoveToDatacenter(targetDC, exporter, userID)
}

// triggerMigration is handleRpcError's entry point for an rpc_result 303:
// it fires MoveToDatacenter using whatever AuthExporter/user id has been
// wired via SetAuthExporter/SetCurrentUserID, with no further external
// glue required. It is a no-op until a host wires an AuthExporter, since
// there is nothing to perform the export/import round trip with.
func (c *Coordinator) triggerMigration(target int32) {
	c.mu.Lock()
	exporter := c.authExporter
	userID := c.currentUserID
	c.mu.Unlock()
	if exporter == nil {
		return
	}
	c.MoveToDatacenter(target, exporter, userID)
}
