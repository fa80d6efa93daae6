// Package srt pulls a transport stream from a remote SRT listener in caller
// mode and exposes it as an io.ReadCloser for the MPEG-TS demuxer.
package srt
