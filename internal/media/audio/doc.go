// Package audio picks the source audio track carried into the low-res
// rendition.
//
// Candidates are ranked by:
//  1. Not flagged or titled as commentary
//  2. Default disposition
//  3. Channel count, since the rendition downmixes to stereo
//  4. Lossless codecs over lossy
//
// Ties go to the earlier track.
package audio
