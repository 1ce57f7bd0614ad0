// Resolves policy fragments: pieces of configuration which are either literal data, or references to remote documents (URLs) or named resources (pages hosted by the platform, eg a community wiki).
//
// References are written as prefixed strings ("url:https://...", "wiki:path/to/page|community") or as include descriptor objects ({"path": "...", "ttl": "10m"}).
package fragment
