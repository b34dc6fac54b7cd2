// Package blobstore holds image ciphertext for chat messages outside the
// message store.
//
// S3Store uploads to an S3-compatible bucket and hands out "s3://bucket/key"
// references; it can also read plain http(s) references through
// HTTPFetcher. DirStore keeps blobs in a local directory and is used when no
// bucket is configured. All stores only ever see ciphertext.
package blobstore
