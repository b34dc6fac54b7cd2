// Package vault implements the password-protected local photo store.
//
// Access is guarded by a salted SHA-256 password hash (PasswordManager);
// content is encrypted with a separate AES-256 key derived from the same
// password and salt with PBKDF2. The derived key is recomputed for every
// operation and never stored.
//
// On disk a vault root holds:
//
//	images/<id>.enc            sealed original image
//	thumbnails/<id>_thumb.enc  sealed JPEG thumbnail
//	metadata.enc               sealed JSON manifest of Image records
//
// Every file uses the cryptox blob format. A password change re-encrypts
// into a staging directory and swaps it in only after every file and the
// pending credential are in place; NewEngine finishes or discards an
// interrupted change.
package vault
