// Component for caching arbitrary data (as JSON strings) with a TTL and purging.
//
// Includes an interface and implementations using redis and in-process memory. Entries expire by TTL; the memory store can also be bounded by entry count.
//
// This is used by the resource cache to memoize author activity, remote content, and criteria results, reducing load on the platform API.
package cachestore
