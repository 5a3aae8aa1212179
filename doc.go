// Package pagequery resolves chained selectors against a live HTML document,
// evaluates element states, waits for conditions on rendering frames or
// document changes, and performs the input actions a browser automation
// driver needs: filling, selecting options, setting files, focusing and
// typing.
//
// A Document wraps an x/net/html node tree, with shadow roots, form control
// state, event listeners and a layout that provides element boxes. An
// Engine runs queries and actions against it. A Session exposes an Engine
// to remote clients over a websocket Conn, exchanging nodes as cdp.NodeID
// handles.
//
// Selectors are chains of engine=body parts joined by >>, eg
//
//	css=.list >> text="Item 2" >> nth=0
//
// with css, xpath, text, visible and nth engines. A part prefixed with *
// captures the element it matched as the result of the whole chain.
package pagequery
