// Package encoding publishes uploaded videos into serving storage.
//
// FFmpeg is the primary adapter: it probes the source with ffprobe, trims the
// configured rendition ladder to the source height, and renders an HLS ladder,
// a progressive MP4, and a JPEG thumbnail into a staging directory that is
// swapped into place only when every output exists. Copier is the degraded
// path used while the encoder is unavailable; it publishes the raw upload
// verbatim.
//
// Unrecoverable input problems (missing raw object, no video stream, data
// ffmpeg cannot demux) are tagged with services.ErrPermanent so callers can
// choose to skip retries.
package encoding
