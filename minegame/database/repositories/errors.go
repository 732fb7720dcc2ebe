package repositories

import "errors"

var (
	// ErrNotFound is returned when an equipment, wallet or market row does
	// not exist. Batch passes treat it as skippable, not fatal.
	ErrNotFound = errors.New("record not found")

	// ErrInsufficientBalance is returned when a debit would push a balance
	// negative. The operation is rejected with no partial mutation.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrMaxUpgradeLevel is returned when a rig is already at level 5.
	ErrMaxUpgradeLevel = errors.New("rig is at maximum upgrade level")

	// ErrPowerShortfall is returned by the accrual pass under the shutdown
	// power policy when a rig's owner cannot cover its power draw.
	ErrPowerShortfall = errors.New("insufficient cash for power draw")
)
