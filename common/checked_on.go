//go:build checked

package common

const Checked = true
