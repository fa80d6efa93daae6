// Package bitstream holds the elementary-stream parsing the containers need
// to describe a stream before any decoder runs: Annex B NAL splitting, H.264
// and H.265 sequence parameter sets, and ADTS framing for AAC.
package bitstream
