// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the mashchat TUI.

All colors use Lip Gloss AdaptiveColor so light and dark terminals both
render legibly.

# Color System (colors.go)

  - Cyan - Brand color, user highlights and the live indicator frame
  - Purple - Assistant messages and accents
  - Emerald - Live backend indicator
  - Amber - Offline indicator, notices and the recording timer
  - Rose - Errors

# Theme (theme.go)

Theme bundles the styles used by the chat view. Create it once with
NewTheme and pass it to the view; call SetSize on resize.

Every state indicator also carries a text label ([LIVE], [OFFLINE], [REC])
so state never depends on color alone.
*/
package styles
