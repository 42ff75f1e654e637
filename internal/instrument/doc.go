// Package instrument abstracts the receiver the acquisition loop reads
// from. The scpi channel talks to a bench multimeter over a serial line,
// the sim channel produces synthetic readings for dry runs and tests.
package instrument
