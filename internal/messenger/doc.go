// Package messenger defines the publish/subscribe and latest-value contract used
// to broadcast task status, plus an in-memory implementation.
//
// Payloads are JSON encoded. Publish is fire-and-forget: subscribers that are
// not listening, or are too slow, miss the message. Set stores the latest value
// per namespace for Get.
package messenger
