// Package prediction provides the oracles that forecast the pack's state of
// charge and temperature from a window of normalized feature vectors.
// Oracles are injected into the control loop; none of them is a global.
package prediction
