// Package ime connects the editing session to the outside world.
//
// # Architecture Overview
//
// An Engine owns one session.Context and reacts to its notifications:
//
//	Key Event → ProcessKey → session edit
//	                              ↓ update
//	                   segment → translate → menus
//	                              ↓ select
//	              forward to the next segment, or commit
//	                              ↓ commit
//	                         CommitSink(text)
//
// Segmentors split the input at code boundaries, translators attach a lazy
// candidate menu to every untranslated segment, and filters wrap each menu
// in the order they were added.
//
// # Key Bindings
//
//	┌──────────────────┬──────────────────────────────────────────────────┐
//	│ Key              │ Effect while composing                           │
//	├──────────────────┼──────────────────────────────────────────────────┤
//	│ alphabet         │ insert at the caret (also starts a composition)  │
//	│ space            │ select the highlighted candidate, else commit    │
//	│ 1-9, 0           │ select a candidate on the current page           │
//	│ Return           │ commit the input as typed                        │
//	│ BackSpace        │ reopen the previous selection, else delete       │
//	│ Delete           │ delete after the caret                           │
//	│ Shift+Delete     │ forget the highlighted candidate                 │
//	│ Up/Down          │ move the highlight                               │
//	│ Page_Up/Down     │ change page                                      │
//	│ Left/Right       │ move the caret by one byte                       │
//	│ Home/End         │ move the caret to either end of the input        │
//	│ Escape           │ drop the composition                             │
//	└──────────────────┴──────────────────────────────────────────────────┘
//
// Other printable keys commit the composition and pass through. Keys held
// with Control, Alt or Super always pass through.
//
// # Platform Support
//
// On Linux, IBusServer exports an org.freedesktop.IBus.Factory and creates
// one IBusEngine per input context. Each IBusEngine drives its own Engine
// and reports commits, the preedit and the candidate page through an
// Emitter. Panics in bus handlers are recovered by a logging.CrashHandler
// and reset the affected engine.
package ime
