package ble

import "fmt"

// ScanFailureName returns a human-readable name for a scan failure code
func ScanFailureName(errorCode int) string {
	switch errorCode {
	case ScanFailedAlreadyStarted:
		return "SCAN_FAILED_ALREADY_STARTED"
	case ScanFailedRegistration:
		return "SCAN_FAILED_APPLICATION_REGISTRATION_FAILED"
	case ScanFailedInternalError:
		return "SCAN_FAILED_INTERNAL_ERROR"
	case ScanFailedFeatureUnsupported:
		return "SCAN_FAILED_FEATURE_UNSUPPORTED"
	case ScanFailedRadioDisabled:
		return "SCAN_FAILED_RADIO_DISABLED"
	default:
		return fmt.Sprintf("UNKNOWN_ERROR_CODE_%d", errorCode)
	}
}

// GattStatusName returns a human-readable name for a GATT status code
func GattStatusName(status int) string {
	switch status {
	case GattSuccess:
		return "GATT_SUCCESS"
	case GattFailure:
		return "GATT_FAILURE"
	default:
		return fmt.Sprintf("UNKNOWN_STATUS_%d", status)
	}
}

// ConnectionStateName returns a human-readable name for a connection state
func ConnectionStateName(state int) string {
	switch state {
	case StateConnected:
		return "STATE_CONNECTED"
	case StateDisconnected:
		return "STATE_DISCONNECTED"
	default:
		return fmt.Sprintf("UNKNOWN_STATE_%d", state)
	}
}
