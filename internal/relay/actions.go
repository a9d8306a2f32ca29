package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lms-io/alexa-slidebolt/internal/device"
)

func (d *Dispatcher) stateUpdate(ctx context.Context, hubID string, msg *Message) (reply, int, error) {
	if msg.DeviceID == "" || isAbsent(msg.State) {
		return errorReply(msgMissingState), http.StatusBadRequest, nil
	}
	if err := d.deps.Devices.UpdateState(ctx, hubID, msg.DeviceID, msg.State); err != nil {
		if errors.Is(err, device.ErrInvalidState) {
			return errorReply(msgInvalidState), http.StatusBadRequest, nil
		}
		return nil, 0, wrap(ActionStateUpdate, err)
	}
	return okReply(), http.StatusOK, nil
}

func (d *Dispatcher) deviceUpsert(ctx context.Context, hubID string, msg *Message) (reply, int, error) {
	var state json.RawMessage
	if !isAbsent(msg.State) {
		state = msg.State
	}
	endpointID, err := d.deps.Devices.Upsert(ctx, hubID, msg.Endpoint, state)
	switch {
	case errors.Is(err, device.ErrInvalidEndpoint):
		return errorReply(msgMissingEndpoint), http.StatusBadRequest, nil
	case errors.Is(err, device.ErrInvalidState):
		return errorReply(msgInvalidState), http.StatusBadRequest, nil
	case err != nil:
		return nil, 0, wrap(ActionDeviceUpsert, err)
	}
	d.logger.Info("device upserted", "hub_id", hubID, "endpoint_id", endpointID)
	return okReply(), http.StatusOK, nil
}

func (d *Dispatcher) listDevices(ctx context.Context, hubID string, _ *Message) (reply, int, error) {
	devices, err := d.deps.Devices.List(ctx, hubID)
	if err != nil {
		return nil, 0, wrap(ActionListDevices, err)
	}
	entries := make([]json.RawMessage, 0, len(devices))
	for i := range devices {
		entries = append(entries, devices[i].ListEntry())
	}
	return reply{"ok": true, "devices": entries}, http.StatusOK, nil
}

func (d *Dispatcher) deleteDevice(ctx context.Context, hubID string, msg *Message) (reply, int, error) {
	if msg.DeviceID == "" {
		return errorReply(msgMissingDeviceID), http.StatusBadRequest, nil
	}
	if err := d.deps.Devices.Delete(ctx, hubID, msg.DeviceID); err != nil {
		return nil, 0, wrap(ActionDeleteDevice, err)
	}
	return reply{"ok": true, "deviceId": msg.DeviceID, "status": string(device.StatusDeleted)}, http.StatusOK, nil
}

func (d *Dispatcher) markDeleted(ctx context.Context, hubID string, msg *Message) (reply, int, error) {
	var ids []string
	if err := json.Unmarshal(msg.DeviceIDs, &ids); err != nil || len(ids) == 0 {
		return errorReply(msgMissingIDList), http.StatusBadRequest, nil
	}
	results := d.deps.Devices.MarkDeleted(ctx, hubID, ids)
	return reply{"ok": true, "results": results}, http.StatusOK, nil
}

func (d *Dispatcher) hardPurge(ctx context.Context, hubID string, _ *Message) (reply, int, error) {
	count, err := d.deps.Devices.HardPurge(ctx, hubID)
	if err != nil {
		return nil, 0, wrap(ActionHardPurge, err)
	}
	r := reply{"ok": true, "count": count}
	if count == 0 {
		r["message"] = msgNothingToPurge
	}
	return r, http.StatusOK, nil
}

// retryDeleted re-sends DeleteReports for every soft-deleted device using
// the hub owner's Alexa token. Gateway failures are logged; the reply
// still counts the devices.
func (d *Dispatcher) retryDeleted(ctx context.Context, hubID string, _ *Message) (reply, int, error) {
	deleted, err := d.deps.Devices.ListDeleted(ctx, hubID)
	if err != nil {
		return nil, 0, wrap(ActionRetryDeleted, err)
	}
	if len(deleted) == 0 {
		return reply{"ok": true, "count": 0, "message": msgNothingToRetry}, http.StatusOK, nil
	}

	h, err := d.deps.Hubs.Get(ctx, hubID)
	if err != nil {
		return nil, 0, wrap(ActionRetryDeleted, err)
	}
	if h.OwnerIdentity == "" {
		return errorReply(msgNoOwner), http.StatusOK, nil
	}
	token, ok := d.deps.Tokens.GetValidToken(ctx, h.OwnerIdentity)
	if !ok {
		return errorReply(msgNoToken), http.StatusOK, nil
	}

	ids := make([]string, 0, len(deleted))
	for i := range deleted {
		ids = append(ids, deleted[i].EndpointID)
	}
	if err := d.deps.Reports.SendDeleteReport(ctx, token, ids); err != nil {
		d.logger.Warn("retry delete report failed", "hub_id", hubID, "count", len(ids), "error", err)
	} else {
		d.logger.Info("deleted devices re-reported", "hub_id", hubID, "count", len(ids))
	}
	return reply{"ok": true, "count": len(ids)}, http.StatusOK, nil
}

// isAbsent reports whether a JSON member was missing or null.
func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
