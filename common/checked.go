//go:build !checked

package common

// Checked enables self validation of internal bookkeeping. Build with -tags checked to turn it on.
const Checked = false
